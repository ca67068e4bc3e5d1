package sms

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestSMSLocalClient_SendSMS(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "key" {
			t.Errorf("Authorization = %q", r.Header.Get("Authorization"))
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewSMSLocalClient("key", srv.URL, "IDCORE")
	res := c.SendSMS(context.Background(), "15550001", "Your OTP is 123456")
	if !res.Success {
		t.Fatalf("SendSMS = %+v", res)
	}
	if got["numbers"] != "15550001" || got["message"] != "Your OTP is 123456" || got["sender_id"] != "IDCORE" {
		t.Errorf("body = %v", got)
	}
}

func TestSMSLocalClient_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"message":"invalid number"}`))
	}))
	defer srv.Close()

	res := NewSMSLocalClient("key", srv.URL, "").SendSMS(context.Background(), "1", "x")
	if res.Success || !strings.Contains(res.Error, "status=400") || !strings.Contains(res.Error, "invalid number") {
		t.Errorf("SendSMS = %+v", res)
	}
}

func TestSMSLocalClient_NoAPIKey(t *testing.T) {
	res := NewSMSLocalClient("", "", "").SendSMS(context.Background(), "1", "x")
	if res.Success || !strings.Contains(res.Error, "API key not configured") {
		t.Errorf("SendSMS = %+v", res)
	}
}

func TestNewSMSLocalClient_Defaults(t *testing.T) {
	c := NewSMSLocalClient("key", "", "")
	if c.BaseURL != defaultBaseURL || c.HTTPClient.Timeout != defaultTimeout {
		t.Errorf("client = %+v", c)
	}
}
