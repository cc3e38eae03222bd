package entities

import (
	"maps"
	"time"
)

type InventoryItem struct {
	ItemId   string `dynamodbav:"ItemId" json:"itemId"`
	Kind     string `dynamodbav:"Kind" json:"kind"`
	Quantity int    `dynamodbav:"Quantity" json:"quantity"`
}

// Account is the player's personal state as held by the server and mirrored
// by every client session.
type Account struct {
	Id          string            `dynamodbav:"Id" json:"id"`
	DisplayName string            `dynamodbav:"DisplayName" json:"displayName"`
	Gold        int64             `dynamodbav:"Gold" json:"gold"`
	Gems        int64             `dynamodbav:"Gems" json:"gems"`
	Experience  int64             `dynamodbav:"Experience" json:"experience"`
	Level       int               `dynamodbav:"Level" json:"level"`
	Rating      float64           `dynamodbav:"Rating" json:"rating"`
	RatingDev   float64           `dynamodbav:"RatingDev" json:"ratingDev"`
	Inventory   []InventoryItem   `dynamodbav:"Inventory" json:"inventory"`
	Equipment   map[string]string `dynamodbav:"Equipment" json:"equipment"`
	Resources   map[string]int64  `dynamodbav:"Resources" json:"resources"`
	UpdatedAt   time.Time         `dynamodbav:"UpdatedAt" json:"updatedAt"`
}

func (a Account) Clone() Account {
	c := a
	c.Inventory = append([]InventoryItem(nil), a.Inventory...)
	c.Equipment = maps.Clone(a.Equipment)
	c.Resources = maps.Clone(a.Resources)
	return c
}

// Connection binds a push channel connection to the match it subscribed to.
type Connection struct {
	Id        string    `dynamodbav:"Id" json:"id"`
	MatchId   string    `dynamodbav:"MatchId" json:"matchId"`
	UserId    string    `dynamodbav:"UserId" json:"userId"`
	CreatedAt time.Time `dynamodbav:"CreatedAt" json:"createdAt"`
}
