package handlers_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/pulsehq/pulse/internal/http/handlers"
)

type bindErrorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Details struct {
			JSON   string                `json:"json"`
			Field  string                `json:"field"`
			Fields []handlers.FieldError `json:"fields"`
		} `json:"details"`
	} `json:"error"`
}

type bindProbe struct {
	Email string `json:"email" binding:"required,email"`
	Count int    `json:"count" binding:"omitempty,min=1,max=10"`
}

func bindRouter() *gin.Engine {
	r := gin.New()
	r.POST("/probe", func(ctx *gin.Context) {
		var req bindProbe
		if !handlers.BindJSON(ctx, &req) {
			return
		}
		ctx.Status(http.StatusOK)
	})

	return r
}

func postProbe(t *testing.T, body string) (*httptest.ResponseRecorder, bindErrorResponse) {
	t.Helper()

	r := bindRouter()

	req := httptest.NewRequest(http.MethodPost, "/probe", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var resp bindErrorResponse

	if w.Code != http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("unmarshal error response: %v body=%s", err, w.Body.String())
		}
	}

	return w, resp
}

func TestBindJSONValidationErrorsUseJSONFieldNames(t *testing.T) {
	w, resp := postProbe(t, `{"count":3}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
	}

	if resp.Error.Code != "invalid_request" {
		t.Fatalf("unexpected code: %s", resp.Error.Code)
	}

	if len(resp.Error.Details.Fields) != 1 {
		t.Fatalf("want exactly one field error, got %+v", resp.Error.Details.Fields)
	}

	fieldErr := resp.Error.Details.Fields[0]

	if fieldErr.Field != "email" || fieldErr.Rule != "required" {
		t.Fatalf("got %+v, want email/required", fieldErr)
	}

	if fieldErr.Message == "" {
		t.Fatal("field error should carry a message")
	}
}

func TestBindJSONRangeRuleIncludesParam(t *testing.T) {
	w, resp := postProbe(t, `{"email":"ana@pulsehq.com","count":99}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400, body=%s", w.Code, w.Body.String())
	}

	fields := resp.Error.Details.Fields

	if len(fields) != 1 || fields[0].Field != "count" || fields[0].Rule != "max" || fields[0].Param != "10" {
		t.Fatalf("unexpected field errors: %+v", fields)
	}
}

func TestBindJSONSyntaxError(t *testing.T) {
	w, resp := postProbe(t, `{"email": ana}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}

	if resp.Error.Details.JSON == "" {
		t.Fatalf("syntax error should be flagged in details, body=%s", w.Body.String())
	}
}

func TestBindJSONTypeMismatch(t *testing.T) {
	w, resp := postProbe(t, `{"email":"ana@pulsehq.com","count":"three"}`)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("got status %d, want 400", w.Code)
	}

	if resp.Error.Details.JSON != "invalid_json_type" || resp.Error.Details.Field != "count" {
		t.Fatalf("unexpected details: %+v body=%s", resp.Error.Details, w.Body.String())
	}
}
