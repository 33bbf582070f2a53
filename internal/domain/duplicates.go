package domain

import (
	"fmt"
	"sort"
)

// DuplicateGroup holds the orders sharing one normalized phone key. Members
// are sorted by ascending order id; the first member is the keeper.
type DuplicateGroup struct {
	Key    string   `json:"key"`
	Orders []*Order `json:"orders"`
}

// Keeper returns the group member retained for shipping
func (g *DuplicateGroup) Keeper() *Order {
	return g.Orders[0]
}

// Duplicates returns the group members marked for cancellation
func (g *DuplicateGroup) Duplicates() []*Order {
	return g.Orders[1:]
}

// Detail renders the operator-facing summary line for a multi-member group
func (g *DuplicateGroup) Detail() string {
	cancelIDs := make([]int64, 0, len(g.Orders)-1)
	for _, o := range g.Duplicates() {
		cancelIDs = append(cancelIDs, o.ID)
	}
	return fmt.Sprintf("%s (%s): %d orders, keep #%d, cancel %v",
		g.Key, g.Keeper().CustomerName, len(g.Orders), g.Keeper().ID, cancelIDs)
}

// Resolution is the outcome of duplicate detection over one fetched order set
type Resolution struct {
	Keepers    []*Order
	Duplicates []*Order
	Groups     []DuplicateGroup
}

// ResolveDuplicates partitions orders into keepers and duplicates by
// normalized customer phone. Orders without a phone are singleton groups keyed
// "no_phone_<id>" so they are never cancelled against each other. Within a
// group the smallest order id wins regardless of input ordering. Pure and
// deterministic: group iteration is by sorted key.
func ResolveDuplicates(orders []*Order) Resolution {
	byKey := make(map[string][]*Order)
	for _, o := range orders {
		key := o.NormalizedPhone()
		if key == "" {
			key = fmt.Sprintf("no_phone_%d", o.ID)
		}
		byKey[key] = append(byKey[key], o)
	}

	keys := make([]string, 0, len(byKey))
	for k := range byKey {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	res := Resolution{}
	for _, key := range keys {
		members := byKey[key]
		sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })

		res.Keepers = append(res.Keepers, members[0])
		if len(members) > 1 {
			res.Duplicates = append(res.Duplicates, members[1:]...)
			res.Groups = append(res.Groups, DuplicateGroup{Key: key, Orders: members})
		}
	}

	return res
}
