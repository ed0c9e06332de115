package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

type Status string

const (
	StatusDraft     Status = "Draft"
	StatusPending   Status = "Pending"
	StatusPublished Status = "Published"
	StatusActive    Status = "Active"
)

// IsTerminal reports whether automation has already consumed the listing.
func (s Status) IsTerminal() bool {
	return s == StatusPublished || s == StatusActive
}

type Platform string

const (
	PlatformCraigslist Platform = "Craigslist"
	PlatformFacebook   Platform = "FB"
	PlatformBoth       Platform = "Both"
)

// Targets resolves which site drivers a platform selector asks for.
// An empty selector means both sites.
func (p Platform) Targets() (craigslist, facebook bool) {
	v := strings.ToLower(strings.TrimSpace(string(p)))
	if v == "" {
		return true, true
	}
	if strings.Contains(v, "both") {
		return true, true
	}
	craigslist = strings.Contains(v, "craigslist")
	facebook = strings.Contains(v, "fb") || strings.Contains(v, "facebook")
	return craigslist, facebook
}

type Category string

// Categories shared by the Craigslist and Facebook posting forms.
const (
	CategoryAntiques           Category = "antiques"
	CategoryAppliances         Category = "appliances"
	CategoryArtsCrafts         Category = "arts+crafts"
	CategoryAutoParts          Category = "auto parts"
	CategoryBabyKid            Category = "baby+kid"
	CategoryBikes              Category = "bikes"
	CategoryBooks              Category = "books"
	CategoryCarsTrucks         Category = "cars+trucks"
	CategoryClothing           Category = "clothes+acc"
	CategoryCollectibles       Category = "collectibles"
	CategoryComputers          Category = "computers"
	CategoryElectronics        Category = "electronics"
	CategoryFarmGarden         Category = "farm+garden"
	CategoryFree               Category = "free"
	CategoryFurniture          Category = "furniture"
	CategoryGarageSale         Category = "garage sale"
	CategoryGeneral            Category = "general"
	CategoryHousehold          Category = "household"
	CategoryJewelry            Category = "jewelry"
	CategoryMaterials          Category = "materials"
	CategoryMusicalInstruments Category = "musical instruments"
	CategoryPhotoVideo         Category = "photo+video"
	CategorySporting           Category = "sporting"
	CategoryTools              Category = "tools"
	CategoryToysGames          Category = "toys+games"
	CategoryVideoGaming        Category = "video gaming"
	CategoryOther              Category = "other"
)

var knownCategories = map[Category]struct{}{
	CategoryAntiques: {}, CategoryAppliances: {}, CategoryArtsCrafts: {}, CategoryAutoParts: {},
	CategoryBabyKid: {}, CategoryBikes: {}, CategoryBooks: {}, CategoryCarsTrucks: {},
	CategoryClothing: {}, CategoryCollectibles: {}, CategoryComputers: {}, CategoryElectronics: {},
	CategoryFarmGarden: {}, CategoryFree: {}, CategoryFurniture: {}, CategoryGarageSale: {},
	CategoryGeneral: {}, CategoryHousehold: {}, CategoryJewelry: {}, CategoryMaterials: {},
	CategoryMusicalInstruments: {}, CategoryPhotoVideo: {}, CategorySporting: {}, CategoryTools: {},
	CategoryToysGames: {}, CategoryVideoGaming: {}, CategoryOther: {},
}

// IsKnown reports whether the category is one the UI offers. Unknown
// categories are still accepted on a listing.
func (c Category) IsKnown() bool {
	_, ok := knownCategories[c]
	return ok
}

// Price keeps the price exactly as entered. The UI sends numbers, the
// shared inventory sends strings like "$1,200". Plain numbers go back out
// as JSON numbers, anything else as a string.
type Price string

func (p Price) MarshalJSON() ([]byte, error) {
	if p.isNumber() {
		return []byte(p), nil
	}
	return json.Marshal(string(p))
}

func (p Price) isNumber() bool {
	s := string(p)
	if s == "" || !json.Valid([]byte(s)) {
		return false
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func (p *Price) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*p = ""
		return nil
	}

	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*p = Price(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("price must be a number or string: %w", err)
	}
	*p = Price(n.String())
	return nil
}

// Digits strips currency symbols, separators and whitespace so the value
// can be typed into a numeric form field.
func (p Price) Digits() string {
	var b strings.Builder
	for _, r := range string(p) {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	return strings.TrimSuffix(b.String(), ".")
}

// Display renders the price as whole dollars with thousands separators.
func (p Price) Display() string {
	digits := p.Digits()
	if digits == "" {
		return ""
	}
	whole := digits
	if i := strings.IndexByte(digits, '.'); i >= 0 {
		whole = digits[:i]
	}
	n, err := strconv.ParseInt(whole, 10, 64)
	if err != nil {
		return "$" + digits
	}

	s := strconv.FormatInt(n, 10)
	var out []byte
	for i := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			out = append(out, ',')
		}
		out = append(out, s[i])
	}
	return "$" + string(out)
}

type Listing struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Price       Price     `json:"price"`
	ZipCode     string    `json:"zip_code"`
	Description string    `json:"description"`
	Condition   string    `json:"condition"`
	Category    Category  `json:"category"`
	ImagePath   string    `json:"image_path,omitempty"`
	ImageData   string    `json:"image_data,omitempty"`
	Platform    Platform  `json:"platform,omitempty"`
	Status      Status    `json:"status"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Validate returns the problems that would make an automated post useless.
func (l *Listing) Validate() []string {
	var problems []string

	if strings.TrimSpace(l.Title) == "" {
		problems = append(problems, "title is required")
	}

	if l.Price.Digits() == "" {
		problems = append(problems, "price must contain digits")
	}

	if l.Status != "" && !l.Status.valid() {
		problems = append(problems, fmt.Sprintf("unknown status %q", l.Status))
	}

	return problems
}

func (s Status) valid() bool {
	switch s {
	case StatusDraft, StatusPending, StatusPublished, StatusActive:
		return true
	}
	return false
}
