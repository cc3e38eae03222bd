package dtos

import (
	"maps"

	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

// AccountFragment carries any subset of an account. A nil field is absent
// and leaves the local value alone.
type AccountFragment struct {
	Id          *string                   `json:"id,omitempty"`
	DisplayName *string                   `json:"displayName,omitempty"`
	Gold        *int64                    `json:"gold,omitempty"`
	Gems        *int64                    `json:"gems,omitempty"`
	Experience  *int64                    `json:"experience,omitempty"`
	Level       *int                      `json:"level,omitempty"`
	Rating      *float64                  `json:"rating,omitempty"`
	RatingDev   *float64                  `json:"ratingDev,omitempty"`
	Inventory   *[]entities.InventoryItem `json:"inventory,omitempty"`
	Equipment   map[string]string         `json:"equipment,omitempty"`
	Resources   map[string]int64          `json:"resources,omitempty"`
}

func AccountFragmentFromEntity(a entities.Account) AccountFragment {
	inventory := append([]entities.InventoryItem{}, a.Inventory...)
	return AccountFragment{
		Id:          &a.Id,
		DisplayName: &a.DisplayName,
		Gold:        &a.Gold,
		Gems:        &a.Gems,
		Experience:  &a.Experience,
		Level:       &a.Level,
		Rating:      &a.Rating,
		RatingDev:   &a.RatingDev,
		Inventory:   &inventory,
		Equipment:   maps.Clone(a.Equipment),
		Resources:   maps.Clone(a.Resources),
	}
}
