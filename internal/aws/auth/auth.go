package auth

import "fmt"

// UserIdFromAuthorizer reads the subject claim the API Gateway JWT
// authorizer attached to the request.
func UserIdFromAuthorizer(authorizer map[string]interface{}) (string, error) {
	jwt, ok := authorizer["jwt"].(map[string]interface{})
	if !ok {
		return "", ErrNoAuthorization
	}
	claims, ok := jwt["claims"].(map[string]interface{})
	if !ok {
		return "", fmt.Errorf("%w: no authorizer claims", ErrInvalidToken)
	}
	userId, ok := claims["sub"].(string)
	if !ok || userId == "" {
		return "", fmt.Errorf("%w: invalid sub", ErrInvalidToken)
	}
	return userId, nil
}
