package parser

import (
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

func parse(html string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return doc, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// LabelIndex returns the document-order index of the first label whose
// text contains text, ignoring case and whitespace runs.
func LabelIndex(html, text string) (int, error) {
	doc, err := parse(html)
	if err != nil {
		return -1, err
	}

	want := normalize(text)
	index := -1
	doc.Find("label").EachWithBreak(func(i int, s *goquery.Selection) bool {
		if strings.Contains(normalize(s.Text()), want) {
			index = i
			return false
		}
		return true
	})

	if index < 0 {
		return -1, fmt.Errorf("label %q: %w", text, ErrNotFound)
	}
	return index, nil
}

// RadioOptions lists the radio inputs in document order with the text of
// their enclosing or associated label.
func RadioOptions(html string) ([]Option, error) {
	doc, err := parse(html)
	if err != nil {
		return nil, err
	}

	options := []Option{}
	doc.Find(`input[type="radio"]`).Each(func(i int, s *goquery.Selection) {
		value, _ := s.Attr("value")
		options = append(options, Option{
			Index: i,
			Value: value,
			Label: radioLabel(doc, s),
		})
	})
	return options, nil
}

func radioLabel(doc *goquery.Document, input *goquery.Selection) string {
	if label := input.Closest("label"); label.Length() > 0 {
		return strings.Join(strings.Fields(label.Text()), " ")
	}
	if id, ok := input.Attr("id"); ok && id != "" {
		label := doc.Find(fmt.Sprintf(`label[for=%q]`, id))
		if label.Length() > 0 {
			return strings.Join(strings.Fields(label.First().Text()), " ")
		}
	}
	return ""
}

// HasField reports whether a form control with the given name exists.
func HasField(html, name string) (bool, error) {
	doc, err := parse(html)
	if err != nil {
		return false, err
	}
	return doc.Find(fmt.Sprintf(`[name=%q]`, name)).Length() > 0, nil
}
