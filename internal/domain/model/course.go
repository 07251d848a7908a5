package model

import "encoding/json"

// Module is owned by the content service; this core only uses its index and
// hands the payload through.
type Module struct {
	CourseRef  string          `json:"course_ref"`
	OrderIndex int             `json:"order_index"` // 0-based
	Title      string          `json:"title"`
	Content    json.RawMessage `json:"content,omitempty"`
}

// Upsell replaces locked content.
type Upsell struct {
	Message  string `json:"message"`
	PlansURL string `json:"plans_url"`
}

type ModuleEntry struct {
	Index  int     `json:"index"`
	Title  string  `json:"title"`
	Locked bool    `json:"locked"`
	Module *Module `json:"module,omitempty"`
	Upsell *Upsell `json:"upsell,omitempty"`
}

type ModuleListView struct {
	CourseRef      string        `json:"course_ref"`
	MaxFreeModules int           `json:"max_free_modules"`
	UnlockedAll    bool          `json:"unlocked_all"`
	Modules        []ModuleEntry `json:"modules"`
	Error          string        `json:"error,omitempty"`
}

type ModuleDetailView struct {
	CourseRef string       `json:"course_ref"`
	Index     int          `json:"index"`
	Access    ModuleAccess `json:"access"`
	Module    *Module      `json:"module,omitempty"`
	Upsell    *Upsell      `json:"upsell,omitempty"`
}
