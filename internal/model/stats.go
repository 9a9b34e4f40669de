package model

// StatsScope selects the audience a ContainerStats is computed for
type StatsScope string

const (
	StatsScopeGlobal  StatsScope = "global"
	StatsScopeCompany StatsScope = "company"
)

// Valid reports whether the scope is global or company
func (s StatsScope) Valid() bool {
	return s == StatsScopeGlobal || s == StatsScopeCompany
}

// ContainerStats are aggregate counts over one snapshot of containers
type ContainerStats struct {
	Scope           StatsScope `json:"scope"`
	TotalContainers int        `json:"total_containers"`
	TotalViews      int64      `json:"total_views"`
	ActiveUsers     int        `json:"active_users"`
	Apps            int        `json:"apps"`
	Voices          int        `json:"voices"`
	Workflows       int        `json:"workflows"`
	Public          int        `json:"public"`
	Restricted      int        `json:"restricted"`
	AdminOnly       int        `json:"admin_only"`
	Marketplace     int        `json:"marketplace"`
}
