package integration

import (
	"errors"
	"net/http"
	"regexp"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"pgsentry/internal/api"
	"pgsentry/internal/auth"
	"pgsentry/internal/config"
	"pgsentry/internal/domain"
)

const (
	terminateQuery = "SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE state_change < now() - make_interval(mins => $1)"
	activityQuery  = "SELECT pid, state FROM pg_stat_activity WHERE state = $1"
	loggerCommand  = "logger terminated idle backends"

	terminateStep = "SELECT pg_terminate_backend(pid) FROM pg_stat_activity WHERE state_change < now() - make_interval(mins => :idle_minutes)"
)

// callerToken maps a caller name used in table entries to an authorization
// header. Tokens can only be issued once the suite is set up.
func callerToken(caller string) string {
	switch caller {
	case "admin":
		return userToken(adminID)
	case "db2-admin":
		return userToken(333)
	case "outsider":
		return userToken(outsider)
	}
	Fail("unknown caller " + caller)
	return ""
}

func expectAPIError(resp *http.Response, status int, code string) {
	Expect(resp.StatusCode).To(Equal(status))
	var apiErr api.APIError
	parseResponse(resp, &apiErr)
	Expect(apiErr.Code).To(Equal(code))
	Expect(apiErr.Detail).NotTo(BeEmpty())
}

var _ = Describe("HTTP API", func() {
	BeforeEach(func() {
		database.prime(nil)
		sshRunner.reset(nil)
	})

	Describe("health", func() {
		It("answers without credentials", func() {
			resp := doRequest(http.MethodGet, "/healthz", "admin", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var health api.HealthResponse
			parseResponse(resp, &health)
			Expect(health.Status).To(Equal("healthy"))
		})

		It("exposes prometheus metrics", func() {
			resp := doRequest(http.MethodGet, "/metrics", "admin", nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			resp.Body.Close()
		})
	})

	Describe("authentication", func() {
		It("rejects requests without credentials", func() {
			resp := doRequest(http.MethodGet, "/targets/", "admin", nil)
			expectAPIError(resp, http.StatusUnauthorized, api.ErrCodeNoCredentials)
		})

		It("rejects unknown tokens", func() {
			resp := doRequest(http.MethodGet, "/targets/", "Bearer not-a-token", nil)
			expectAPIError(resp, http.StatusUnauthorized, api.ErrCodeIncorrectCredentials)
		})

		It("rejects expired tokens", func() {
			expired, err := authenticator.IssueToken(adminID, -time.Minute)
			Expect(err).NotTo(HaveOccurred())

			resp := doRequest(http.MethodGet, "/targets/", "Bearer "+expired, nil)
			expectAPIError(resp, http.StatusUnauthorized, api.ErrCodeIncorrectCredentials)
		})

		It("rejects tokens signed with another secret", func() {
			other := auth.NewAuthenticator(&config.AuthConfig{JWTSecret: "other-secret", BotToken: "1:other"})
			forged, err := other.IssueToken(adminID, time.Hour)
			Expect(err).NotTo(HaveOccurred())

			resp := doRequest(http.MethodGet, "/targets/", "Bearer "+forged, nil)
			expectAPIError(resp, http.StatusUnauthorized, api.ErrCodeIncorrectCredentials)
		})
	})

	Describe("targets", func() {
		It("lists configured aliases", func() {
			resp := doRequest(http.MethodGet, "/targets/", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var aliases []string
			parseResponse(resp, &aliases)
			Expect(aliases).To(Equal([]string{"db1", "db2"}))
		})
	})

	Describe("actions", func() {
		It("lists the catalog", func() {
			resp := doRequest(http.MethodGet, "/actions/", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var actions []domain.Action
			parseResponse(resp, &actions)
			Expect(actions).To(HaveLen(2))
			Expect(actions[0].Alias).To(Equal("restart"))
			Expect(actions[1].Alias).To(Equal("terminate_idle"))
		})

		It("returns one action", func() {
			resp := doRequest(http.MethodGet, "/actions/terminate_idle", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var action domain.Action
			parseResponse(resp, &action)
			Expect(action.Title).To(Equal("Terminate idle backends"))
			Expect(action.Steps).To(HaveLen(2))
			Expect(action.Steps[1].Required).To(BeFalse())
		})

		It("reports unknown actions", func() {
			resp := doRequest(http.MethodGet, "/actions/vacuum", userToken(adminID), nil)
			expectAPIError(resp, http.StatusNotFound, api.ErrCodeActionNotFound)
		})

		It("runs every step and commits the statement", func() {
			database.prime(func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(terminateQuery)).
					WithArgs(5).
					WillReturnResult(sqlmock.NewResult(0, 3))
				mock.ExpectCommit()
			})

			resp := doRequest(http.MethodPost, "/actions/execute/terminate_idle?target_alias=db1",
				userToken(adminID), map[string]any{"idle_minutes": 5})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result domain.ActionResult
			parseResponse(resp, &result)
			Expect(result.Success).To(BeTrue())
			Expect(result.Detail).To(BeEmpty())
			Expect(database.verify()).To(Equal(1))
			Expect(sshRunner.ran()).To(Equal([]string{loggerCommand}))
		})

		It("uses argument defaults when the body is empty", func() {
			database.prime(func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(terminateQuery)).
					WithArgs(10).
					WillReturnResult(sqlmock.NewResult(0, 0))
				mock.ExpectCommit()
			})

			resp := doRequest(http.MethodPost, "/actions/execute/terminate_idle?target_alias=db1", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result domain.ActionResult
			parseResponse(resp, &result)
			Expect(result.Success).To(BeTrue())
			Expect(database.verify()).To(Equal(1))
		})

		It("continues past a failing optional step", func() {
			database.prime(func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(terminateQuery)).WillReturnResult(sqlmock.NewResult(0, 1))
				mock.ExpectCommit()
			})
			sshRunner.reset(map[string]string{loggerCommand: "connection refused"})

			resp := doRequest(http.MethodPost, "/actions/execute/terminate_idle?target_alias=db1", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result domain.ActionResult
			parseResponse(resp, &result)
			Expect(result.Success).To(BeTrue())
			Expect(result.Detail).To(Equal(loggerCommand + ": SSHQueryError: connection refused"))
		})

		It("stops at a failing required step and rolls back", func() {
			database.prime(func(mock sqlmock.Sqlmock) {
				mock.ExpectBegin()
				mock.ExpectExec(regexp.QuoteMeta(terminateQuery)).WillReturnError(errors.New("permission denied"))
				mock.ExpectRollback()
			})

			resp := doRequest(http.MethodPost, "/actions/execute/terminate_idle?target_alias=db1", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result domain.ActionResult
			parseResponse(resp, &result)
			Expect(result.Success).To(BeFalse())
			Expect(result.Detail).To(Equal(terminateStep + ": SQLQueryError: permission denied"))
			Expect(database.verify()).To(Equal(1))
			Expect(sshRunner.ran()).To(BeEmpty())
		})

		It("lets the bot act on behalf of an admin", func() {
			resp := doRequest(http.MethodPost, "/actions/execute/restart?target_alias=db1",
				"Bearer 111:"+botToken, map[string]any{"reason": "oom"})
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var result domain.ActionResult
			parseResponse(resp, &result)
			Expect(result.Success).To(BeTrue())
			Expect(sshRunner.ran()).To(Equal([]string{"sudo systemctl restart postgresql"}))
		})

		DescribeTable("rejects invalid requests",
			func(path, caller string, body map[string]any, status int, code string) {
				resp := doRequest(http.MethodPost, path, callerToken(caller), body)
				expectAPIError(resp, status, code)
				Expect(database.verify()).To(BeZero())
				Expect(sshRunner.ran()).To(BeEmpty())
			},
			Entry("missing target alias", "/actions/execute/restart", "admin", nil,
				http.StatusBadRequest, api.ErrCodeBadRequest),
			Entry("unknown target", "/actions/execute/restart?target_alias=db9", "admin", map[string]any{"reason": "x"},
				http.StatusNotFound, api.ErrCodeTargetNotFound),
			Entry("missing required argument", "/actions/execute/restart?target_alias=db1", "admin", nil,
				http.StatusBadRequest, api.ErrCodeArgumentRequired),
			Entry("wrong argument type", "/actions/execute/terminate_idle?target_alias=db1", "admin", map[string]any{"idle_minutes": "soon"},
				http.StatusBadRequest, api.ErrCodeWrongArgumentType),
			Entry("unknown action", "/actions/execute/vacuum?target_alias=db1", "admin", nil,
				http.StatusNotFound, api.ErrCodeActionNotFound),
			Entry("caller is not an admin", "/actions/execute/restart?target_alias=db1", "outsider", map[string]any{"reason": "x"},
				http.StatusForbidden, api.ErrCodeNotEnoughPermissions),
			Entry("admin of another target", "/actions/execute/restart?target_alias=db1", "db2-admin", map[string]any{"reason": "x"},
				http.StatusForbidden, api.ErrCodeNotEnoughPermissions),
		)
	})

	Describe("views", func() {
		activityRows := func() *sqlmock.Rows {
			return sqlmock.NewRows([]string{"pid", "state"}).
				AddRow(int64(101), "idle").
				AddRow(int64(102), "idle").
				AddRow(int64(103), "idle").
				AddRow(int64(104), "idle")
		}

		It("lists the catalog", func() {
			resp := doRequest(http.MethodGet, "/views/", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var views []domain.View
			parseResponse(resp, &views)
			Expect(views).To(HaveLen(1))
			Expect(views[0].Alias).To(Equal("activity"))
		})

		It("returns one view", func() {
			resp := doRequest(http.MethodGet, "/views/activity", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var view domain.View
			parseResponse(resp, &view)
			Expect(view.Arguments).To(HaveKey("state"))
		})

		It("returns one page of rows", func() {
			database.prime(func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(activityQuery)).
					WithArgs("idle").
					WillReturnRows(activityRows())
			})

			resp := doRequest(http.MethodGet, "/views/execute/activity?target_alias=db1&state=idle&limit=2&offset=1",
				userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var rows []map[string]any
			parseResponse(resp, &rows)
			Expect(rows).To(Equal([]map[string]any{
				{"pid": float64(102), "state": "idle"},
				{"pid": float64(103), "state": "idle"},
			}))
			Expect(database.verify()).To(Equal(1))
		})

		It("binds argument defaults", func() {
			database.prime(func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(activityQuery)).
					WithArgs("active").
					WillReturnRows(sqlmock.NewRows([]string{"pid", "state"}))
			})

			resp := doRequest(http.MethodGet, "/views/execute/activity?target_alias=db1", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var rows []map[string]any
			parseResponse(resp, &rows)
			Expect(rows).To(BeEmpty())
			Expect(database.verify()).To(Equal(1))
		})

		It("reports query failures as a bad gateway", func() {
			database.prime(func(mock sqlmock.Sqlmock) {
				mock.ExpectQuery(regexp.QuoteMeta(activityQuery)).WillReturnError(errors.New("relation does not exist"))
			})

			resp := doRequest(http.MethodGet, "/views/execute/activity?target_alias=db1", userToken(adminID), nil)
			Expect(resp.StatusCode).To(Equal(http.StatusBadGateway))

			var apiErr api.APIError
			parseResponse(resp, &apiErr)
			Expect(apiErr.Code).To(Equal(string(domain.SQLQueryError)))
			Expect(apiErr.Detail).To(ContainSubstring("relation does not exist"))
		})

		DescribeTable("rejects invalid requests",
			func(path, caller string, status int, code string) {
				resp := doRequest(http.MethodGet, path, callerToken(caller), nil)
				expectAPIError(resp, status, code)
				Expect(database.verify()).To(BeZero())
			},
			Entry("missing target alias", "/views/execute/activity", "admin", http.StatusBadRequest, api.ErrCodeBadRequest),
			Entry("negative limit", "/views/execute/activity?target_alias=db1&limit=-1", "admin", http.StatusBadRequest, api.ErrCodeWrongArgumentType),
			Entry("non-numeric offset", "/views/execute/activity?target_alias=db1&offset=x", "admin", http.StatusBadRequest, api.ErrCodeWrongArgumentType),
			Entry("unknown view", "/views/execute/locks?target_alias=db1", "admin", http.StatusNotFound, api.ErrCodeViewNotFound),
			Entry("caller is not an admin", "/views/execute/activity?target_alias=db1", "outsider", http.StatusForbidden, api.ErrCodeNotEnoughPermissions),
		)
	})
})
