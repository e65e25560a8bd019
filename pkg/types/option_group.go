package types

// MenuOption is one selectable choice inside an option group.
type MenuOption struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	PriceDeltaCents int64  `json:"price_delta_cents"`
}

// MenuOptionGroup bundles the options a menu item offers. The catalog admin
// service owns the write side; the core only reads these when pricing.
type MenuOptionGroup struct {
	ID      string       `json:"id"`
	Name    string       `json:"name"`
	Options []MenuOption `json:"options"`
}

// MenuOptionGroups is stored as a jsonb column.
type MenuOptionGroups []MenuOptionGroup

// FindOption locates an option by group and option id.
func (g MenuOptionGroups) FindOption(groupID, optionID string) (MenuOptionGroup, MenuOption, bool) {
	for _, group := range g {
		if group.ID != groupID {
			continue
		}
		for _, opt := range group.Options {
			if opt.ID == optionID {
				return group, opt, true
			}
		}
	}
	return MenuOptionGroup{}, MenuOption{}, false
}
