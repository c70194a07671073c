package integration

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pgsentry/internal/api"
	"pgsentry/internal/domain"
)

// webhookAlert builds one Alertmanager alert entry.
func webhookAlert(alertname, target string, startsAt time.Time) map[string]any {
	labels := map[string]any{"alertname": alertname, "severity": "critical"}
	if target != "" {
		labels["target"] = target
	}
	return map[string]any{
		"status":      "firing",
		"labels":      labels,
		"annotations": map[string]any{"description": "95 of 100 connections used"},
		"startsAt":    startsAt.UTC().Format(time.RFC3339Nano),
	}
}

func webhook(alerts ...map[string]any) map[string]any {
	return map[string]any{
		"receiver": "pgsentry",
		"status":   "firing",
		"alerts":   alerts,
	}
}

func pendingDeliveries(query string) []domain.GroupedDelivery {
	resp := doRequest(http.MethodGet, "/alerts/delivery"+query, botHeader(), nil)
	Expect(resp.StatusCode).To(Equal(http.StatusOK))

	var grouped []domain.GroupedDelivery
	parseResponse(resp, &grouped)
	return grouped
}

var _ = Describe("Alert lifecycle", Ordered, func() {
	var alertID int64

	It("accepts the webhook only from the alerting bot", func() {
		resp := doRequest(http.MethodPost, "/alerts/alertmanager-callback", userToken(adminID), webhook())
		expectAPIError(resp, http.StatusForbidden, api.ErrCodeNotEnoughPermissions)

		resp = doRequest(http.MethodGet, "/alerts/delivery", userToken(adminID), nil)
		expectAPIError(resp, http.StatusForbidden, api.ErrCodeNotEnoughPermissions)

		resp = doRequest(http.MethodPost, "/alerts/finish", userToken(adminID), api.FinishRequest{AlertID: 1})
		expectAPIError(resp, http.StatusForbidden, api.ErrCodeNotEnoughPermissions)
	})

	It("rejects malformed webhook bodies", func() {
		resp := doRequest(http.MethodPost, "/alerts/alertmanager-callback", botHeader(), []string{"not", "an", "object"})
		expectAPIError(resp, http.StatusBadRequest, api.ErrCodeBadRequest)
	})

	It("stores usable entries and skips the rest", func() {
		now := time.Now()
		invalid := webhookAlert("too_many_connections", "db1", now)
		invalid["startsAt"] = "yesterday"

		resp := doRequest(http.MethodPost, "/alerts/alertmanager-callback", botHeader(), webhook(
			webhookAlert("too_many_connections", "db1", now),
			webhookAlert("too_many_connections", "", now),
			webhookAlert("too_many_connections", "db9", now),
			webhookAlert("", "db1", now),
			invalid,
		))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()

		grouped := pendingDeliveries("")
		Expect(grouped).To(HaveLen(1))

		pending := grouped[0]
		alertID = pending.ID
		Expect(pending.Alias).To(Equal("too_many_connections"))
		Expect(pending.TargetAlias).To(Equal("db1"))
		Expect(pending.Status).To(Equal("firing"))
		Expect(pending.Title).To(Equal("Too many connections"))
		Expect(pending.Description).To(Equal("95 of 100 connections used"))
		Expect(pending.Severity).To(Equal("critical"))
		Expect(pending.SuggestedActions).To(Equal([]string{"terminate_idle"}))
		Expect(pending.RelatedViews).To(Equal([]string{"activity"}))
		Expect(pending.Receivers).To(Equal([]int64{111, 222}))
		Expect(alertRepo.Deliveries(alertID)).To(HaveLen(2))
	})

	It("emails the target's addresses", func() {
		Eventually(sender.sent).WithTimeout(2 * time.Second).Should(HaveLen(1))

		email := sender.sent()[0]
		Expect(email.From).To(Equal("pgsentry@example.com"))
		Expect(email.To).To(Equal([]string{"ops@example.com"}))
		Expect(email.Subject).To(Equal("Alert: db1 Too many connections"))
		Expect(email.Text).To(ContainSubstring("95 of 100 connections used"))
	})

	It("returns the alert by id to any authenticated caller", func() {
		resp := doRequest(http.MethodGet, fmt.Sprintf("/alerts/by-id/%d", alertID), userToken(outsider), nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		var alert domain.MappedAlert
		parseResponse(resp, &alert)
		Expect(alert.ID).To(Equal(alertID))
		Expect(alert.Title).To(Equal("Too many connections"))
		Expect(alert.Value).To(HaveKey("labels"))
	})

	It("reports unknown and malformed alert ids", func() {
		resp := doRequest(http.MethodGet, "/alerts/by-id/999999", userToken(adminID), nil)
		expectAPIError(resp, http.StatusNotFound, api.ErrCodeAlertNotFound)

		resp = doRequest(http.MethodGet, "/alerts/by-id/latest", userToken(adminID), nil)
		expectAPIError(resp, http.StatusBadRequest, api.ErrCodeBadRequest)
	})

	It("finishes delivery per receiver", func() {
		resp := doRequest(http.MethodPost, "/alerts/finish", botHeader(),
			api.FinishRequest{AlertID: alertID, Receivers: []int64{111}})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()

		grouped := pendingDeliveries("")
		Expect(grouped).To(HaveLen(1))
		Expect(grouped[0].Receivers).To(Equal([]int64{222}))

		// Finishing again is a no-op.
		resp = doRequest(http.MethodPost, "/alerts/finish", botHeader(),
			api.FinishRequest{AlertID: alertID, Receivers: []int64{111, 222}})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()

		Expect(pendingDeliveries("")).To(BeEmpty())
	})

	It("requires an alert id to finish", func() {
		resp := doRequest(http.MethodPost, "/alerts/finish", botHeader(), api.FinishRequest{Receivers: []int64{111}})
		expectAPIError(resp, http.StatusBadRequest, api.ErrCodeBadRequest)
	})

	It("limits pending deliveries to the age window", func() {
		resp := doRequest(http.MethodPost, "/alerts/alertmanager-callback", botHeader(), webhook(
			webhookAlert("too_many_connections", "db2", time.Now().Add(-2*time.Hour)),
		))
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()

		Expect(pendingDeliveries("")).To(BeEmpty())

		grouped := pendingDeliveries("?age=10800")
		Expect(grouped).To(HaveLen(1))
		Expect(grouped[0].TargetAlias).To(Equal("db2"))
		// db2 has no explicit receivers, so its admins are notified.
		Expect(grouped[0].Receivers).To(Equal([]int64{333}))
	})

	It("rejects invalid age values", func() {
		for _, age := range []string{"-5", "hour"} {
			resp := doRequest(http.MethodGet, "/alerts/delivery?age="+age, botHeader(), nil)
			expectAPIError(resp, http.StatusBadRequest, api.ErrCodeBadRequest)
		}
	})

	It("accepts the bot acting on behalf of a user", func() {
		resp := doRequest(http.MethodGet, "/alerts/delivery", "Bearer "+strings.Join([]string{"111", botToken}, ":"), nil)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		resp.Body.Close()
	})
})
