package cluster

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

// TestDoJSONPost tests JSON POSTs with various scenarios
func TestDoJSONPost(t *testing.T) {
	tests := []struct {
		name           string
		serverResponse int
		serverBody     string
		requestBody    interface{}
		responseBody   interface{}
		expectError    bool
		contextTimeout bool
	}{
		{
			name:           "successful POST with response",
			serverResponse: http.StatusOK,
			serverBody:     `{"message":"ACCEPTED"}`,
			requestBody:    PrimeCheckRequest{Check: 91, Start: 0, End: 91},
			responseBody:   &Ack{},
		},
		{
			name:           "successful POST without response body",
			serverResponse: http.StatusNoContent,
			requestBody:    LeaderElectedRequest{LeaderID: 400},
		},
		{
			name:           "server error response",
			serverResponse: http.StatusInternalServerError,
			serverBody:     `{"message":"boom"}`,
			requestBody:    LeaderElectedRequest{LeaderID: 400},
			expectError:    true,
		},
		{
			name:           "context timeout",
			serverResponse: http.StatusOK,
			serverBody:     `{"message":"ACCEPTED"}`,
			requestBody:    LeaderElectedRequest{LeaderID: 400},
			expectError:    true,
			contextTimeout: true,
		},
		{
			name:           "unmarshalable request body",
			serverResponse: http.StatusOK,
			requestBody:    make(chan int),
			expectError:    true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Errorf("Expected POST method, got %s", r.Method)
				}
				if ct := r.Header.Get("Content-Type"); ct != "application/json" {
					t.Errorf("Expected Content-Type application/json, got %s", ct)
				}
				if tt.contextTimeout {
					time.Sleep(100 * time.Millisecond)
				}
				w.WriteHeader(tt.serverResponse)
				if tt.serverBody != "" {
					w.Write([]byte(tt.serverBody))
				}
			}))
			defer server.Close()

			ctx := context.Background()
			if tt.contextTimeout {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, 1*time.Millisecond)
				defer cancel()
			}

			err := DoJSON(ctx, nil, http.MethodPost, server.URL, nil, tt.requestBody, tt.responseBody)

			if tt.expectError && err == nil {
				t.Errorf("Expected error but got none")
			}
			if !tt.expectError && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
			if !tt.expectError && tt.responseBody != nil {
				ack := tt.responseBody.(*Ack)
				if ack.Message != "ACCEPTED" {
					t.Errorf("Expected ACCEPTED, got %q", ack.Message)
				}
			}
		})
	}
}

// TestDoJSONStatusError tests that non-2xx answers surface as *StatusError
func TestDoJSONStatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "missing", http.StatusNotFound)
	}))
	defer server.Close()

	err := DoJSON(context.Background(), nil, http.MethodGet, server.URL, nil, nil, &Ack{})

	var se *StatusError
	if !errors.As(err, &se) {
		t.Fatalf("Expected *StatusError, got %v", err)
	}
	if se.Code != http.StatusNotFound {
		t.Errorf("Expected code 404, got %d", se.Code)
	}
}

// TestDoJSONHeaders tests that extra headers reach the server
func TestDoJSONHeaders(t *testing.T) {
	var got string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Get(DestinationHeader)
		WriteAck(w, "ACCEPTED")
	}))
	defer server.Close()

	header := http.Header{}
	header.Set(DestinationHeader, "10.0.0.7:9001")

	var ack Ack
	if err := DoJSON(context.Background(), nil, http.MethodGet, server.URL, header, nil, &ack); err != nil {
		t.Fatalf("Unexpected error: %v", err)
	}
	if got != "10.0.0.7:9001" {
		t.Errorf("Expected destination header to be forwarded, got %q", got)
	}
	if ack.Message != "ACCEPTED" {
		t.Errorf("Expected ACCEPTED, got %q", ack.Message)
	}
}

// TestDoJSONInvalidURL tests DoJSON with invalid URL
func TestDoJSONInvalidURL(t *testing.T) {
	ctx := context.Background()
	var result NodeInformation

	if err := DoJSON(ctx, nil, http.MethodGet, "://invalid-url", nil, nil, &result); err == nil {
		t.Error("Expected error for invalid URL, got none")
	}
	if err := DoJSON(ctx, nil, http.MethodGet, "http://localhost:99999", nil, nil, &result); err == nil {
		t.Error("Expected error for unreachable server, got none")
	}
}

// TestHTTPClient tests that the HTTP client has proper timeout
func TestHTTPClient(t *testing.T) {
	if httpClient.Timeout != 5*time.Second {
		t.Errorf("Expected HTTP client timeout of 5s, got %v", httpClient.Timeout)
	}
}
