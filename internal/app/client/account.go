package client

import (
	"errors"
	"fmt"
	"slices"

	"github.com/chess-vn/slbaduk/internal/domains/dtos"
	"github.com/chess-vn/slbaduk/internal/domains/entities"
)

var ErrIdentityMismatch = errors.New("account identity mismatch")

// MergeResult reports what a merge did. Applied is false when the update was
// rejected or carried no fields; Changed is set when a stored value moved.
type MergeResult struct {
	Applied bool
	Changed bool
}

// MergeAccount folds fragment into account. The account id is pinned: a
// fragment naming another account is rejected and account is left untouched.
// Inventory is replaced wholesale, equipment and resources are merged key by
// key, and every other present field overwrites the stored one.
func MergeAccount(account *entities.Account, f dtos.AccountFragment) (MergeResult, error) {
	if f.Id != nil && account.Id != "" && *f.Id != account.Id {
		return MergeResult{}, fmt.Errorf("%w: have %s - got %s", ErrIdentityMismatch, account.Id, *f.Id)
	}
	if !present(f) {
		return MergeResult{}, nil
	}

	// High-traffic counters first; they move on almost every update.
	changed := set(&account.Gold, f.Gold)
	changed = set(&account.Gems, f.Gems) || changed
	changed = set(&account.Experience, f.Experience) || changed
	changed = set(&account.Level, f.Level) || changed

	changed = set(&account.Id, f.Id) || changed
	changed = set(&account.DisplayName, f.DisplayName) || changed
	changed = set(&account.Rating, f.Rating) || changed
	changed = set(&account.RatingDev, f.RatingDev) || changed
	changed = replaceInventory(account, f.Inventory) || changed
	changed = mergeMap(&account.Equipment, f.Equipment) || changed
	changed = mergeMap(&account.Resources, f.Resources) || changed

	return MergeResult{Applied: true, Changed: changed}, nil
}

func present(f dtos.AccountFragment) bool {
	return f.Id != nil ||
		f.DisplayName != nil ||
		f.Gold != nil ||
		f.Gems != nil ||
		f.Experience != nil ||
		f.Level != nil ||
		f.Rating != nil ||
		f.RatingDev != nil ||
		f.Inventory != nil ||
		len(f.Equipment) > 0 ||
		len(f.Resources) > 0
}

func set[T comparable](dst *T, src *T) bool {
	if src == nil || *dst == *src {
		return false
	}
	*dst = *src
	return true
}

func replaceInventory(account *entities.Account, inventory *[]entities.InventoryItem) bool {
	if inventory == nil {
		return false
	}
	changed := !slices.Equal(account.Inventory, *inventory)
	account.Inventory = append([]entities.InventoryItem{}, *inventory...)
	return changed
}

func mergeMap[V comparable](dst *map[string]V, src map[string]V) bool {
	if len(src) == 0 {
		return false
	}
	if *dst == nil {
		*dst = make(map[string]V, len(src))
	}
	changed := false
	for k, v := range src {
		if old, ok := (*dst)[k]; ok && old == v {
			continue
		}
		(*dst)[k] = v
		changed = true
	}
	return changed
}
