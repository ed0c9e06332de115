package automation

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReport(t *testing.T) {
	r := newReport(SiteCraigslist)
	r.ok("navigate", Navigated)
	r.ok("title", FormFilled)
	r.skip("upload image", errors.New("no image for listing"))

	ok, skipped := r.Counts()
	assert.Equal(t, 2, ok)
	assert.Equal(t, 1, skipped)
	assert.Equal(t, FormFilled, r.Reached)
	assert.Equal(t, []string{"upload image"}, r.Skipped())
	assert.Equal(t, "craigslist: 2 ok, 1 skipped, reached FormFilled (skipped: upload image)", r.Summary())

	r.ok("continue", PaymentOrReview)
	assert.Equal(t, Done, r.finish().Reached)
}

func TestReport_JSON(t *testing.T) {
	r := newReport(SiteFacebook)
	r.ok("navigate", Navigated)
	r.skip("category", errManualCategory)

	data, err := json.Marshal(r)
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"site": "facebook",
		"reached": "Navigated",
		"steps": [
			{"step": "navigate", "state": "Navigated", "status": "ok"},
			{"step": "category", "state": "Error", "status": "skipped", "reason": "category must be chosen manually"}
		]
	}`, string(data))

	var back Report
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Navigated, back.Reached)
	require.Len(t, back.Steps, 2)
	assert.Equal(t, Error, back.Steps[1].State)
	assert.Equal(t, "category must be chosen manually", back.Steps[1].Reason)
}

func TestState_UnmarshalUnknown(t *testing.T) {
	var s State
	err := json.Unmarshal([]byte(`"Teleported"`), &s)
	assert.EqualError(t, err, `unknown state "Teleported"`)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "PaymentOrReview", PaymentOrReview.String())
	assert.Equal(t, "State(42)", State(42).String())
}
