package echoapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trezcool/tuition/core"
	"github.com/trezcool/tuition/core/debtor"
	"github.com/trezcool/tuition/core/payment"
	"github.com/trezcool/tuition/core/statistics"
	"github.com/trezcool/tuition/core/student"
	"github.com/trezcool/tuition/core/user"
	inmemdb "github.com/trezcool/tuition/storage/database/inmem"
	testutil "github.com/trezcool/tuition/tests"
)

var testNow = time.Date(2024, time.March, 15, 12, 0, 0, 0, time.UTC)

type fixture struct {
	srv     *Server
	db      *inmemdb.DB
	admin   user.User
	token   string
	english student.Group
	aziza   student.Student
}

func setup(t *testing.T) *fixture {
	t.Helper()
	conf := &core.Config{
		AppName:   "Tuition",
		SecretKey: "test-secret",
		TestMode:  true,
		Server: core.Server{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
	}
	validate, translator := testutil.NewValidator()
	db := inmemdb.Open()
	payments := inmemdb.NewPaymentRepository(db)
	dir := inmemdb.NewStudentDirectory(db)
	usrRepo := inmemdb.NewUserRepository(db)

	debtorSvc := debtor.NewService(dir, payments, debtor.Options{Threshold: decimal.NewFromInt(1)}, validate)
	debtorSvc.NowFunc = func() time.Time { return testNow }
	statsSvc := statistics.NewService(payments, validate)
	statsSvc.NowFunc = func() time.Time { return testNow }

	f := &fixture{db: db}
	f.english = db.AddGroup(testutil.Group("ENG-1", "500000"))
	f.aziza = db.AddStudent(student.Student{
		Code:           "S-001",
		FirstName:      "Aziza",
		LastName:       "Karimova",
		EnrollmentDate: testutil.Date(2024, 1, 10),
	}, f.english.ID)
	f.admin = testutil.CreateUser(t, usrRepo, "Jane Doe", "janedoe", "jane@example.com", "Pwd.1234", []string{user.RoleAdminAccountant}, true)

	f.srv = NewServer(Options{
		Conf:           conf,
		Logger:         new(testutil.Logger),
		Validate:       validate,
		Translator:     translator,
		DisableReqLogs: true,
		UserSvc:        user.NewService(usrRepo, validate),
		PaymentSvc:     payment.NewService(db, payments, dir, nil, validate, new(testutil.Logger)),
		DebtorSvc:      debtorSvc,
		StatisticsSvc:  statsSvc,
	})
	f.token = f.tokenFor(t, f.admin)
	return f
}

func (f *fixture) tokenFor(t *testing.T, usr user.User) string {
	t.Helper()
	token, err := f.srv.generateToken(f.srv.userClaims(usr))
	require.NoError(t, err)
	return token
}

func (f *fixture) do(t *testing.T, method, path, token string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	f.srv.ServeHTTP(rec, req)

	var data map[string]interface{}
	if rec.Body.Len() > 0 {
		_ = json.Unmarshal(rec.Body.Bytes(), &data)
	}
	return rec.Code, data
}

func (f *fixture) recordPayment(t *testing.T, amount float64, month, year int) map[string]interface{} {
	t.Helper()
	code, data := f.do(t, http.MethodPost, "/v1/payments", f.token, map[string]interface{}{
		"studentId":    f.aziza.ID,
		"groupId":      f.english.ID,
		"amount":       amount,
		"paymentType":  "NAQD",
		"date":         "05-03-2024",
		"billingMonth": month,
		"billingYear":  year,
	})
	require.Equal(t, http.StatusCreated, code, data)
	return data
}

func TestUserAPI_Login(t *testing.T) {
	f := setup(t)
	usrRepo := inmemdb.NewUserRepository(f.db)
	testutil.CreateUser(t, usrRepo, "Old Admin", "oldadmin", "old@example.com", "Pwd.1234", []string{user.RoleAdmin}, false)

	tests := []struct {
		name     string
		body     map[string]string
		wantCode int
	}{
		{"missing password", map[string]string{"username": "janedoe"}, http.StatusBadRequest},
		{"wrong password", map[string]string{"username": "janedoe", "password": "nope"}, http.StatusBadRequest},
		{"unknown user", map[string]string{"username": "ghost", "password": "Pwd.1234"}, http.StatusBadRequest},
		{"deactivated", map[string]string{"username": "oldadmin", "password": "Pwd.1234"}, http.StatusForbidden},
		{"by username", map[string]string{"username": "JaneDoe", "password": "Pwd.1234"}, http.StatusOK},
		{"by email", map[string]string{"username": "jane@example.com", "password": "Pwd.1234"}, http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			code, data := f.do(t, http.MethodPost, "/v1/users/login", "", tc.body)
			assert.Equal(t, tc.wantCode, code, data)
			if tc.wantCode == http.StatusOK {
				assert.NotEmpty(t, data["token"])
			}
		})
	}
}

func TestUserAPI_RefreshToken(t *testing.T) {
	f := setup(t)

	code, data := f.do(t, http.MethodPost, "/v1/users/token-refresh", f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, data["token"])

	code, _ = f.do(t, http.MethodPost, "/v1/users/token-refresh", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)
}

func TestAuthorization(t *testing.T) {
	f := setup(t)
	nobody := testutil.CreateUser(t, inmemdb.NewUserRepository(f.db), "No Role", "norole", "", "Pwd.1234", nil, true)

	code, _ := f.do(t, http.MethodGet, "/v1/payments", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = f.do(t, http.MethodGet, "/v1/payments", f.tokenFor(t, nobody), nil)
	assert.Equal(t, http.StatusForbidden, code)

	// only owners may register admins
	code, _ = f.do(t, http.MethodPost, "/v1/users/register", f.token, map[string]interface{}{"name": "X"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestPaymentAPI_Lifecycle(t *testing.T) {
	f := setup(t)

	created := f.recordPayment(t, 500000, 1, 2024)
	id := created["id"].(string)
	assert.EqualValues(t, 500000, created["amount"])
	assert.EqualValues(t, 500000, created["studentBalance"])
	assert.Equal(t, "YANVAR", created["billingMonth"])
	assert.Equal(t, f.admin.ID, created["createdBy"])

	code, data := f.do(t, http.MethodGet, "/v1/payments/"+id, f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, data["id"])

	code, data = f.do(t, http.MethodPatch, "/v1/payments/"+id, f.token, map[string]interface{}{"amount": 450000})
	assert.Equal(t, http.StatusOK, code, data)
	assert.EqualValues(t, 450000, data["studentBalance"])

	code, data = f.do(t, http.MethodGet, "/v1/students/"+f.aziza.ID+"/balance", f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 450000, data["balance"])

	code, data = f.do(t, http.MethodGet, "/v1/payments?filterByStudentId=s-001&ordering=-amount", f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1, data["total"])

	code, data = f.do(t, http.MethodDelete, "/v1/payments/"+id, f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, id, data["id"])

	code, data = f.do(t, http.MethodGet, "/v1/payments/"+id, f.token, nil)
	assert.Equal(t, http.StatusNotFound, code)
	assert.Equal(t, "payment not found", data["error"])

	code, data = f.do(t, http.MethodGet, "/v1/payments/history?paymentId="+id+"&sortBy=createdAt&sortOrder=asc", f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 3, data["total"])
	records := data["data"].([]interface{})
	assert.Equal(t, "CREATE", records[0].(map[string]interface{})["action"])
	assert.Equal(t, "DELETE", records[2].(map[string]interface{})["action"])
}

func TestPaymentAPI_Errors(t *testing.T) {
	f := setup(t)

	tests := []struct {
		name     string
		method   string
		path     string
		body     map[string]interface{}
		wantCode int
		wantKey  string
	}{
		{
			name:   "bad date",
			method: http.MethodPost,
			path:   "/v1/payments",
			body: map[string]interface{}{
				"studentId": f.aziza.ID, "groupId": f.english.ID, "amount": 1, "paymentType": "NAQD", "date": "2024-03-05",
			},
			wantCode: http.StatusBadRequest,
			wantKey:  "date",
		},
		{
			name:   "bad payment type",
			method: http.MethodPost,
			path:   "/v1/payments",
			body: map[string]interface{}{
				"studentId": f.aziza.ID, "groupId": f.english.ID, "amount": 1, "paymentType": "CHEQUE", "date": "05-03-2024",
			},
			wantCode: http.StatusBadRequest,
			wantKey:  "paymentType",
		},
		{
			name:   "unknown student",
			method: http.MethodPost,
			path:   "/v1/payments",
			body: map[string]interface{}{
				"studentId": uuid.New().String(), "groupId": f.english.ID, "amount": 1, "paymentType": "NAQD", "date": "05-03-2024",
			},
			wantCode: http.StatusNotFound,
			wantKey:  "error",
		},
		{
			name:     "amend unknown payment",
			method:   http.MethodPatch,
			path:     "/v1/payments/" + uuid.New().String(),
			body:     map[string]interface{}{"amount": 10},
			wantCode: http.StatusNotFound,
			wantKey:  "error",
		},
		{
			name:     "void unknown payment",
			method:   http.MethodDelete,
			path:     "/v1/payments/" + uuid.New().String(),
			wantCode: http.StatusNotFound,
			wantKey:  "error",
		},
		{
			name:     "balance of unknown student",
			method:   http.MethodGet,
			path:     "/v1/students/" + uuid.New().String() + "/balance",
			wantCode: http.StatusNotFound,
			wantKey:  "error",
		},
		{
			name:     "bad list filter",
			method:   http.MethodGet,
			path:     "/v1/payments?filterByPaymentType=CHEQUE",
			wantCode: http.StatusBadRequest,
			wantKey:  "filterByPaymentType",
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var body interface{}
			if tc.body != nil {
				body = tc.body
			}
			code, data := f.do(t, tc.method, tc.path, f.token, body)
			assert.Equal(t, tc.wantCode, code, data)
			assert.Contains(t, data, tc.wantKey)
		})
	}
}

func TestDebtorAPI(t *testing.T) {
	f := setup(t)
	f.recordPayment(t, 500000, 1, 2024)

	code, data := f.do(t, http.MethodGet, "/v1/debtors", f.token, nil)
	require.Equal(t, http.StatusOK, code, data)
	assert.EqualValues(t, 1, data["total"])
	d := data["data"].([]interface{})[0].(map[string]interface{})
	assert.Equal(t, "S-001", d["studentId"])
	assert.EqualValues(t, 1000000, d["totalDebt"])
	assert.EqualValues(t, 3, d["monthsActive"])
	assert.Len(t, d["debtorMonths"], 2)

	code, data = f.do(t, http.MethodGet, "/v1/debtors?filterByMonth=1&filterByYear=2024", f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 0, data["total"])

	code, data = f.do(t, http.MethodGet, "/v1/debtors?filterByMonth=3", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, data, "filterByYear")

	code, data = f.do(t, http.MethodGet, "/v1/debtors/"+f.aziza.ID, f.token, nil)
	assert.Equal(t, http.StatusOK, code)
	assert.EqualValues(t, 1000000, data["totalDebt"])
	assert.EqualValues(t, 500000, data["totalPaid"])

	code, _ = f.do(t, http.MethodGet, "/v1/debtors/"+uuid.New().String(), f.token, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestStatisticsAPI(t *testing.T) {
	f := setup(t)
	f.recordPayment(t, 500000, 3, 2024)

	code, data := f.do(t, http.MethodGet, "/v1/statistics/payments-sum", f.token, nil)
	require.Equal(t, http.StatusOK, code, data)
	assert.EqualValues(t, 500000, data["total"])
	assert.EqualValues(t, 0, data["previousTotal"])

	code, _ = f.do(t, http.MethodGet, "/v1/statistics/payments-sum?dateFrom=2024/03/01", f.token, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}
