package automation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/maltedev/listing-autoposter/internal/parser"
)

const (
	clDealerType  = `input[value="fsd"]`
	clGo          = `[name="go"]`
	clRadio       = `input[type="radio"]`
	clLabel       = `label`
	clEmail       = `[name="FromEMail"]`
	clTitle       = `[name="PostingTitle"]`
	clPrice       = `[name="price"]`
	clPostal      = `[name="postal"]`
	clBody        = `[name="PostingBody"]`
	clShowPhone   = `[name="show_phone_ok"]`
	clPhone       = `[name="contact_phone"]`
	clContactName = `[name="contact_name"]`
	clTextOK      = `[name="contact_text_ok"]`
	clFileInput   = `input[type="file"]`
	clDoneImages  = `xpath=//button[contains(text(), 'done with images')]`
	clContinue    = `button.continue`
	clBillingFrm  = `iframe`
)

// CraigslistConfig controls where the Craigslist driver posts and how long
// it waits. CategoryIndex picks a radio on the category page; an index out of
// range selects the last one.
type CraigslistConfig struct {
	PostURL        string
	CategoryIndex  int
	SubArea        string
	ContactEmail   string
	ContactName    string
	Footer         string
	Payment        PaymentInfo
	ElementTimeout time.Duration
	SettleTimeout  time.Duration
	PollInterval   time.Duration
}

// DefaultCraigslistConfig posts to the Denver site.
func DefaultCraigslistConfig() CraigslistConfig {
	return CraigslistConfig{
		PostURL:        "https://post.craigslist.org/c/den",
		CategoryIndex:  24,
		SubArea:        "city of denver",
		Footer:         "Pickup Only.",
		ElementTimeout: 10 * time.Second,
		SettleTimeout:  15 * time.Second,
		PollInterval:   250 * time.Millisecond,
	}
}

// Craigslist fills the Craigslist posting flow up to the billing page.
type Craigslist struct {
	cfg   CraigslistConfig
	pacer Pacer
}

// NewCraigslist returns a driver that spaces its actions with pacer.
func NewCraigslist(cfg CraigslistConfig, pacer Pacer) *Craigslist {
	return &Craigslist{cfg: cfg, pacer: pacer}
}

func (c *Craigslist) Site() string {
	return SiteCraigslist
}

// Body is the posting text: title, description and footer separated by
// blank lines.
func (c *Craigslist) Body(job Job) string {
	return fmt.Sprintf("%s\n\n%s\n\n%s", job.Listing.Title, job.Listing.Description, c.cfg.Footer)
}

// Post walks the posting flow on tab and never submits payment. A failed
// step is recorded as skipped and the flow carries on. Once ctx is
// cancelled the remaining steps are skipped without touching the page.
func (c *Craigslist) Post(ctx context.Context, tab Tab, job Job, log Logger) *Report {
	s := newSequence(ctx, SiteCraigslist, tab, job, log, c.pacer, c.cfg.ElementTimeout, c.cfg.PollInterval)
	listing := job.Listing

	s.log.Printf("[craigslist] Opening %s", c.cfg.PostURL)
	s.step("navigate", Navigated, func() error {
		return tab.Goto(s.ctx, c.cfg.PostURL)
	})

	s.step("dealer type", Navigated, func() error {
		n, err := tab.Count(clDealerType)
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w: %s", ErrElementNotFound, clDealerType)
		}
		if err := tab.Click(clDealerType); err != nil {
			return err
		}
		return s.click(tab, clGo)
	})

	s.step("category", Navigated, func() error {
		return c.chooseCategory(s)
	})

	s.step("sub-area", Navigated, func() error {
		html, err := tab.Content()
		if err != nil {
			return err
		}
		index, err := parser.LabelIndex(html, c.cfg.SubArea)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrElementNotFound, err)
		}
		if err := tab.ClickNth(clLabel, index); err != nil {
			return err
		}
		return s.click(tab, clGo)
	})

	s.log.Printf("[craigslist] Filling form")
	var formErr error
	var absent map[string]bool
	s.step("locate form", FormLocated, func() error {
		if formErr = tab.WaitFor(clTitle, c.cfg.ElementTimeout); formErr != nil {
			return formErr
		}
		absent = c.absentFields(tab)
		return nil
	})

	fill := func(name, field, value string) {
		if formErr != nil {
			s.skip(name, fmt.Errorf("form not located: %w", formErr))
			return
		}
		selector := clField(field)
		if absent[field] {
			s.skip(name, fmt.Errorf("%w: %s", ErrElementNotFound, selector))
			return
		}
		s.step(name, FormFilled, func() error {
			return s.fill(tab, selector, value)
		})
	}

	if c.cfg.ContactEmail != "" {
		s.step("contact email", FormFilled, func() error {
			current, err := tab.Value(clEmail)
			if err != nil {
				return err
			}
			if current != "" {
				return nil
			}
			return s.fill(tab, clEmail, c.cfg.ContactEmail)
		})
	}

	postal := listing.ZipCode
	if postal == "" {
		postal = c.cfg.Payment.Postal
	}

	s.log.Printf("[craigslist] Asking %s", listing.Price.Display())
	fill("title", "PostingTitle", listing.Title)
	fill("price", "price", listing.Price.Digits())
	fill("postal", "postal", postal)
	fill("body", "PostingBody", c.Body(job))

	s.step("contact details", FormFilled, func() error {
		if err := s.click(tab, clShowPhone); err != nil {
			return err
		}
		if err := s.fill(tab, clPhone, c.cfg.Payment.Phone); err != nil {
			return err
		}
		if err := s.fill(tab, clContactName, c.cfg.ContactName); err != nil {
			return err
		}
		return s.click(tab, clTextOK)
	})

	s.step("submit form", FormFilled, func() error {
		return s.click(tab, clGo)
	})

	s.step("skip map", FormFilled, func() error {
		return s.click(tab, clGo)
	})

	if job.ImagePath == "" {
		s.skip("upload image", errors.New("no image for listing"))
	} else {
		s.log.Printf("[craigslist] Uploading image: %s", job.ImagePath)
		s.step("upload image", ImageUploaded, func() error {
			if err := tab.WaitFor(clFileInput, c.cfg.ElementTimeout); err != nil {
				return err
			}
			if err := tab.SetInputFiles(clFileInput, job.ImagePath); err != nil {
				return err
			}
			err := s.wait(c.cfg.SettleTimeout, func() (bool, error) {
				n, err := tab.Count(clDoneImages)
				return n > 0, err
			})
			if err != nil {
				return fmt.Errorf("waiting for upload: %w", err)
			}
			return tab.Click(clDoneImages)
		})
	}

	s.log.Printf("[craigslist] Moving to payment")
	s.step("continue", PaymentOrReview, func() error {
		return s.click(tab, clContinue)
	})

	s.step("billing details", PaymentOrReview, func() error {
		if err := tab.WaitFor(clBillingFrm, c.cfg.ElementTimeout); err != nil {
			return err
		}
		frame := tab.Frame(clBillingFrm)
		p := c.cfg.Payment
		fields := []struct{ name, value string }{
			{"cardName", p.CardName},
			{"cardNumber", p.CardNumber},
			{"expMonth", p.ExpMonth},
			{"expYear", p.ExpYear},
			{"cvCode", p.CVC},
			{"billingAddress", p.Address},
			{"billingCity", p.City},
			{"billingState", p.State},
			{"billingPostal", p.Postal},
		}
		for _, f := range fields {
			if err := s.fill(frame, fmt.Sprintf(`[name=%q]`, f.name), f.value); err != nil {
				return err
			}
		}
		return nil
	})

	report := s.done()
	s.log.Printf("[craigslist] Finished, %s", report.Summary())
	return report
}

var clFormFields = []string{"PostingTitle", "price", "postal", "PostingBody"}

func clField(name string) string {
	return fmt.Sprintf(`[name=%q]`, name)
}

// absentFields reads the loaded form once and reports which fields it lacks,
// so their fills are skipped without waiting out the element timeout. A
// snapshot without the title field is not trusted.
func (c *Craigslist) absentFields(tab Tab) map[string]bool {
	html, err := tab.Content()
	if err != nil {
		return nil
	}
	if ok, err := parser.HasField(html, "PostingTitle"); err != nil || !ok {
		return nil
	}

	absent := map[string]bool{}
	for _, field := range clFormFields {
		if ok, err := parser.HasField(html, field); err == nil && !ok {
			absent[field] = true
		}
	}
	return absent
}

// chooseCategory clicks the configured radio, or the last one when the
// index is out of range, and presses go if the page does not move on its
// own.
func (c *Craigslist) chooseCategory(s *sequence) error {
	tab := s.tab
	if err := tab.WaitFor(clRadio, c.cfg.ElementTimeout); err != nil {
		return err
	}

	n, err := tab.Count(clRadio)
	if err != nil {
		return err
	}

	index := c.cfg.CategoryIndex
	if index < 0 || index >= n {
		s.log.Printf("[craigslist] Category index %d out of range (%d options), using last", index, n)
		index = -1
	}

	if html, err := tab.Content(); err == nil {
		if options, err := parser.RadioOptions(html); err == nil && len(options) > 0 {
			chosen := options[len(options)-1]
			if index >= 0 && index < len(options) {
				chosen = options[index]
			}
			s.log.Printf("[craigslist] Selecting category: %s", chosen.Label)
		}
	}

	before := tab.URL()
	if err := tab.ClickNth(clRadio, index); err != nil {
		return err
	}

	err = s.wait(c.cfg.ElementTimeout, func() (bool, error) {
		return tab.URL() != before, nil
	})
	if errors.Is(err, ErrWaitTimeout) {
		return s.click(tab, clGo)
	}
	return err
}
