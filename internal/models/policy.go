package models

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
)

// MaxImageBytes is the largest photo the Facebook form accepts.
const MaxImageBytes = 30 << 20

var prohibitedKeywords = []struct{ keyword, category string }{
	{"gun", "weapons"}, {"firearm", "weapons"}, {"rifle", "weapons"},
	{"shotgun", "weapons"}, {"pistol", "weapons"}, {"ammo", "weapons"},
	{"ammunition", "weapons"}, {"holster", "weapons"}, {"silencer", "weapons"},
	{"suppressor", "weapons"}, {"magazine clip", "weapons"}, {"assault weapon", "weapons"},
	{"handgun", "weapons"}, {"revolver", "weapons"}, {"ar-15", "weapons"},
	{"ar15", "weapons"}, {"ak-47", "weapons"}, {"ak47", "weapons"},

	{"marijuana", "drugs"}, {"cannabis", "drugs"}, {"weed", "drugs"},
	{"cbd", "drugs"}, {"thc", "drugs"}, {"vape", "drugs"},
	{"e-cigarette", "drugs"}, {"tobacco", "drugs"}, {"kratom", "drugs"},
	{"psilocybin", "drugs"}, {"mushroom spore", "drugs"}, {"delta-8", "drugs"},
	{"delta 8", "drugs"}, {"edible", "drugs"},

	{"puppy for sale", "animals"}, {"kitten for sale", "animals"},
	{"live animal", "animals"}, {"reptile for sale", "animals"},
	{"livestock", "animals"}, {"pet for sale", "animals"},
	{"bird for sale", "animals"}, {"fish for sale", "animals"},

	{"adult toy", "adult"}, {"sex toy", "adult"},

	{"replica", "counterfeit"}, {"knockoff", "counterfeit"},
	{"counterfeit", "counterfeit"}, {"unauthorized copy", "counterfeit"},
	{"bootleg", "counterfeit"}, {"fake designer", "counterfeit"},

	{"recalled", "hazardous"}, {"explosive", "hazardous"},
	{"flammable liquid", "hazardous"}, {"firework", "hazardous"},
	{"tear gas", "hazardous"}, {"pepper spray", "hazardous"},

	{"prescription", "medical"}, {"pharmaceutical", "medical"},
	{"controlled substance", "medical"}, {"medical device", "medical"},

	{"digital download", "digital"}, {"gift card", "digital"},
	{"voucher", "digital"}, {"concert ticket", "digital"},
	{"event ticket", "digital"}, {"airline ticket", "digital"},
	{"subscription", "digital"}, {"software license", "digital"},
	{"nft", "digital"}, {"cryptocurrency", "digital"},
}

type keywordRule struct {
	pattern  *regexp.Regexp
	keyword  string
	category string
}

var keywordRules = func() []keywordRule {
	rules := make([]keywordRule, 0, len(prohibitedKeywords))
	for _, k := range prohibitedKeywords {
		rules = append(rules, keywordRule{
			pattern:  regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(k.keyword) + `\b`),
			keyword:  k.keyword,
			category: k.category,
		})
	}
	return rules
}()

var (
	phonePattern     = regexp.MustCompile(`(\+?1[-.\s]?)?\(?\d{3}\)?[-.\s]?\d{3}[-.\s]?\d{4}`)
	urlPattern       = regexp.MustCompile(`(?i)https?://\S+|www\.\S+`)
	allCapsPattern   = regexp.MustCompile(`^[A-Z\s\d!@#$%^&*()_+\-=\[\]{}|;:'",./<>?]{10,}$`)
	punctuationSpam  = regexp.MustCompile(`!{3,}|\?{3,}|\${3,}|\.{4,}`)
	placeholderHosts = []string{"via.placeholder.com", "placeholder.com", "placehold.it", "dummyimage.com"}
	imageExtensions  = []string{".jpg", ".jpeg", ".png"}
)

var spamPhrases = []*regexp.Regexp{
	regexp.MustCompile(`(?i)buy\s*now`),
	regexp.MustCompile(`(?i)act\s*fast`),
	regexp.MustCompile(`(?i)limited\s*time`),
	regexp.MustCompile(`(?i)call\s*now`),
	regexp.MustCompile(`(?i)text\s*me`),
	regexp.MustCompile(`(?i)dm\s*me`),
	regexp.MustCompile(`(?i)\bfree\s+shipping\b`),
	regexp.MustCompile(`(?i)\bno\s+scam\b`),
}

// Image describes the photo a run will upload.
type Image struct {
	Path string
	Size int64
}

// PolicyReport lists marketplace policy problems. Errors block posting to
// the marketplace, warnings are informational.
type PolicyReport struct {
	Errors   []string `json:"errors,omitempty"`
	Warnings []string `json:"warnings,omitempty"`
}

func (r *PolicyReport) OK() bool {
	return len(r.Errors) == 0
}

func (r *PolicyReport) errorf(format string, args ...any) {
	r.Errors = append(r.Errors, fmt.Sprintf(format, args...))
}

func (r *PolicyReport) warnf(format string, args ...any) {
	r.Warnings = append(r.Warnings, fmt.Sprintf(format, args...))
}

// ProhibitedKeywords returns the banned keywords found in text as
// "keyword (category)".
func ProhibitedKeywords(text string) []string {
	var found []string
	for _, rule := range keywordRules {
		if rule.pattern.MatchString(text) {
			found = append(found, fmt.Sprintf("%s (%s)", rule.keyword, rule.category))
		}
	}
	return found
}

// MarketplacePolicy checks the listing against Facebook Marketplace
// commerce rules without touching a browser.
func (l *Listing) MarketplacePolicy(img Image) PolicyReport {
	var r PolicyReport

	for _, k := range ProhibitedKeywords(l.Title) {
		r.errorf("prohibited keyword in title: %s", k)
	}
	for _, k := range ProhibitedKeywords(l.Description) {
		r.errorf("prohibited keyword in description: %s", k)
	}

	checkTitle(&r, strings.TrimSpace(l.Title))
	checkDescription(&r, strings.TrimSpace(l.Description))
	checkPrice(&r, l.Price)
	checkImage(&r, img)

	if strings.TrimSpace(l.Condition) == "" {
		r.warnf("condition not set")
	}
	if l.Category != "" && !l.Category.IsKnown() {
		r.warnf("category %q is not offered by the marketplace form", l.Category)
	}

	return r
}

func checkTitle(r *PolicyReport, title string) {
	if title == "" {
		r.errorf("title is required")
		return
	}

	if n := len([]rune(title)); n < 5 {
		r.errorf("title too short (%d chars, min 5)", n)
	} else if n > 80 {
		r.errorf("title too long (%d chars, max 80)", n)
	}
	if allCapsPattern.MatchString(title) {
		r.warnf("title is all caps")
	}
	if punctuationSpam.MatchString(title) {
		r.warnf("title has excessive punctuation")
	}
	if phonePattern.MatchString(title) {
		r.errorf("title contains a phone number")
	}
	if urlPattern.MatchString(title) {
		r.errorf("title contains a URL")
	}
	for _, p := range spamPhrases {
		if m := p.FindString(title); m != "" {
			r.warnf("title contains spam-like phrase %q", m)
			break
		}
	}
}

func checkDescription(r *PolicyReport, description string) {
	if description == "" {
		r.warnf("description is empty")
		return
	}

	if n := len([]rune(description)); n < 20 {
		r.warnf("description is very short (%d chars)", n)
	}
	if phonePattern.MatchString(description) {
		r.errorf("description contains a phone number")
	}
	if urlPattern.MatchString(description) {
		r.errorf("description contains a URL")
	}
	for _, line := range strings.Split(description, "\n") {
		if len(line) > 10 && allCapsPattern.MatchString(line) {
			r.warnf("description has all caps sections")
			break
		}
	}
}

func checkPrice(r *PolicyReport, price Price) {
	digits := price.Digits()
	if digits == "" {
		r.errorf("price is required")
		return
	}

	v, err := strconv.ParseFloat(digits, 64)
	switch {
	case err != nil || v <= 0:
		r.errorf("price must be greater than $0")
	case v >= 100000:
		r.errorf("price %s is too high (max $99,999)", price.Display())
	case v < 1:
		r.warnf("price under $1")
	}
}

func checkImage(r *PolicyReport, img Image) {
	if img.Path == "" {
		r.errorf("at least 1 image is required")
		return
	}

	for _, host := range placeholderHosts {
		if strings.Contains(img.Path, host) {
			r.errorf("image is a placeholder")
			break
		}
	}
	if img.Size > MaxImageBytes {
		r.errorf("image is %d bytes (max %d)", img.Size, MaxImageBytes)
	}

	ext := strings.ToLower(filepath.Ext(strings.SplitN(img.Path, "?", 2)[0]))
	known := false
	for _, e := range imageExtensions {
		if ext == e {
			known = true
			break
		}
	}
	if !known {
		r.warnf("image may not be JPG or PNG")
	}
	r.warnf("only 1 image, listings with 3 or more get more views")
}
