package automation

var closeSelectors = []string{
	`div[aria-label="Close"]`,
	`div[role="button"] i`,
}

// DismissPopups presses Escape and clicks the first close control found.
// Errors are ignored.
func DismissPopups(tab Tab) {
	_ = tab.Press("Escape")

	for _, sel := range closeSelectors {
		n, err := tab.Count(sel)
		if err != nil || n == 0 {
			continue
		}
		_ = tab.ClickNth(sel, 0)
		return
	}
}
