// Package pages manages the site pages that host the member flows. Each
// page carries a tag in its content naming the flow it serves.
package pages

import (
	"strings"
	"time"
)

// Page tags.
const (
	TagRegister       = "[clubroster-register]"
	TagLogin          = "[clubroster-login]"
	TagProfile        = "[clubroster-profile]"
	TagChangePassword = "[clubroster-change-password]"
	TagLostPassword   = "[clubroster-lost-password]"
)

// StatusPublish marks a page as visible.
const StatusPublish = "publish"

// Page is a stored site page.
type Page struct {
	ID        int64
	Slug      string
	Title     string
	Content   string
	Status    string
	CreatedAt time.Time
}

// HasTag reports whether the page content carries tag.
func (p Page) HasTag(tag string) bool {
	return strings.Contains(p.Content, tag)
}

// Definition describes one page created on install and the route serving it.
type Definition struct {
	Tag   string
	Slug  string
	Title string
	Route string
}

// Definitions lists the tagged pages in install order.
var Definitions = []Definition{
	{Tag: TagRegister, Slug: "register", Title: "Register", Route: "/register"},
	{Tag: TagLogin, Slug: "login", Title: "Login", Route: "/login"},
	{Tag: TagProfile, Slug: "profile", Title: "Profile", Route: "/profile"},
	{Tag: TagChangePassword, Slug: "change-password", Title: "Change Password", Route: "/change-password"},
	// No reset mail flow exists; lost passwords are handled from the login page.
	{Tag: TagLostPassword, Slug: "lost-password", Title: "Lost Password", Route: "/login"},
}

// RouteFor returns the route of the first known tag in content.
func RouteFor(content string) (string, bool) {
	first, route := -1, ""
	for _, d := range Definitions {
		if i := strings.Index(content, d.Tag); i >= 0 && (first < 0 || i < first) {
			first, route = i, d.Route
		}
	}
	return route, first >= 0
}
