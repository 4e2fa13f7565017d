package service

import (
	"testing"

	"github.com/eonpro/eonpro-sub008/internal/constants"
)

func TestClassifyBillingInterval(t *testing.T) {
	cases := []struct {
		unit  string
		count int
		want  string
	}{
		{"month", 1, constants.BillingIntervalMonthly},
		{"month", 2, constants.BillingIntervalMonthly},
		{"month", 3, constants.BillingIntervalQuarterly},
		{"month", 6, constants.BillingIntervalSemiannual},
		{"month", 12, constants.BillingIntervalAnnual},
		{"year", 1, constants.BillingIntervalAnnual},
		{"year", 2, constants.BillingIntervalAnnual},
		{"week", 4, constants.BillingIntervalMonthly},
		{"day", 28, constants.BillingIntervalMonthly},
		{"", 0, constants.BillingIntervalMonthly},
	}
	for _, c := range cases {
		if got := ClassifyBillingInterval(c.unit, c.count); got != c.want {
			t.Errorf("ClassifyBillingInterval(%q, %d) = %s, want %s", c.unit, c.count, got, c.want)
		}
	}
}

func TestMapSubscriptionStatus(t *testing.T) {
	cases := []struct {
		kind     string
		upstream string
		want     string
	}{
		{constants.EventKindSubscriptionCreated, "active", constants.SubscriptionStatusActive},
		{constants.EventKindSubscriptionCreated, "trialing", constants.SubscriptionStatusActive},
		{constants.EventKindSubscriptionUpdated, "past_due", constants.SubscriptionStatusPastDue},
		{constants.EventKindSubscriptionUpdated, "paused", constants.SubscriptionStatusPaused},
		{constants.EventKindSubscriptionUpdated, "unpaid", constants.SubscriptionStatusCanceled},
		{constants.EventKindSubscriptionUpdated, "incomplete_expired", constants.SubscriptionStatusCanceled},
		{constants.EventKindSubscriptionDeleted, "active", constants.SubscriptionStatusCanceled},
		{constants.EventKindSubscriptionUpdated, "something_new", constants.SubscriptionStatusActive},
	}
	for _, c := range cases {
		if got := MapSubscriptionStatus(c.kind, c.upstream); got != c.want {
			t.Errorf("MapSubscriptionStatus(%q, %q) = %s, want %s", c.kind, c.upstream, got, c.want)
		}
	}
}
