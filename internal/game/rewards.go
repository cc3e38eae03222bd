package game

import (
	"time"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
	"github.com/chess-vn/slbaduk/pkg/utils"
)

// Rewards are granted to both participants when a match ends with a result.
type Rewards struct {
	WinExperience      int64
	LossExperience     int64
	WinGold            int64
	ExperiencePerLevel int64
}

func DefaultRewards() Rewards {
	return Rewards{
		WinExperience:      30,
		LossExperience:     10,
		WinGold:            20,
		ExperiencePerLevel: 100,
	}
}

// NewAccount is the account a player starts with on first sight.
func NewAccount(userId string, now time.Time) entities.Account {
	return entities.Account{
		Id:          userId,
		DisplayName: userId,
		Level:       1,
		Rating:      utils.DefaultRating,
		RatingDev:   utils.DefaultRatingDev,
		Inventory:   []entities.InventoryItem{},
		Equipment:   map[string]string{},
		Resources:   map[string]int64{},
		UpdatedAt:   now,
	}
}

// Settle applies one rating period and the rewards of a finished match to
// accounts, which must be ordered like players. It reports false and leaves
// accounts alone when the match has no result to settle.
func Settle(
	players []entities.SessionPlayer,
	result *entities.MatchResult,
	accounts []entities.Account,
	rewards Rewards,
	now time.Time,
) bool {
	if result == nil || len(players) != 2 || len(accounts) != 2 {
		return false
	}
	ratings := []utils.Rating{
		{Value: accounts[0].Rating, Dev: accounts[0].RatingDev},
		{Value: accounts[1].Rating, Dev: accounts[1].RatingDev},
	}
	for i, p := range players {
		score := 0.5
		switch result.Winner {
		case p.Stone:
			score = 1
		case p.Stone.Opponent():
			score = 0
		}
		updated := utils.UpdateRating(ratings[i], []utils.Rating{ratings[1-i]}, []float64{score})
		account := &accounts[i]
		account.Rating = updated.Value
		account.RatingDev = updated.Dev
		if score == 1 {
			account.Experience += rewards.WinExperience
			account.Gold += rewards.WinGold
		} else {
			account.Experience += rewards.LossExperience
		}
		if rewards.ExperiencePerLevel > 0 {
			account.Level = 1 + int(account.Experience/rewards.ExperiencePerLevel)
		}
		account.UpdatedAt = now
	}
	return true
}
