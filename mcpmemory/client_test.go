package mcpmemory

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func testClient(t *testing.T) *Client {
	t.Helper()
	return NewClient(5*time.Second, nil)
}

func memoryServer(t *testing.T, handler http.HandlerFunc) (*httptest.Server, Target) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return srv, Target{BaseURL: srv.URL, ServerID: "srv-1"}
}

func TestRetrieveBareList(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memory/retrieve" {
			t.Errorf("path = %s", r.URL.Path)
		}
		q := r.URL.Query()
		if q.Get("server_id") != "srv-1" || q.Get("thread_id") != "th-1" || q.Get("q") != "hello" {
			t.Errorf("unexpected query: %v", q)
		}
		json.NewEncoder(w).Encode([]map[string]string{
			{"content": "fact one", "source": "notes"},
			{"text": "fact two"},
		})
	})

	res, err := testClient(t).Retrieve(context.Background(), target, "th-1", "hello", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !res.Supported {
		t.Fatal("want Supported")
	}
	if len(res.Snippets) != 2 {
		t.Fatalf("got %d snippets, want 2", len(res.Snippets))
	}
	if res.Snippets[0].Content != "fact one" || res.Snippets[0].Source != "notes" {
		t.Errorf("snippet 0 = %+v", res.Snippets[0])
	}
	if res.Snippets[1].Content != "fact two" {
		t.Errorf("snippet 1 = %+v, want text field used as content", res.Snippets[1])
	}
}

func TestRetrieveWrappedPayloads(t *testing.T) {
	for _, field := range []string{"snippets", "memories"} {
		t.Run(field, func(t *testing.T) {
			_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
				json.NewEncoder(w).Encode(map[string]any{
					field: []string{"remembered thing"},
				})
			})

			res, err := testClient(t).Retrieve(context.Background(), target, "t", "q", 5)
			if err != nil {
				t.Fatalf("retrieve: %v", err)
			}
			if len(res.Snippets) != 1 || res.Snippets[0].Content != "remembered thing" {
				t.Errorf("got %+v", res.Snippets)
			}
		})
	}
}

func TestRetrieveNotImplemented(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res, err := testClient(t).Retrieve(context.Background(), target, "t", "q", 5)
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if res.Supported {
		t.Error("want Supported == false")
	}
}

func TestRetrieveServerError(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		w.Write([]byte(`{"error":"busted"}`))
	})

	if _, err := testClient(t).Retrieve(context.Background(), target, "t", "q", 5); err == nil {
		t.Error("expected error for 500")
	}
}

func TestRetrieveUnexpectedObject(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"unrelated": true})
	})

	res, err := testClient(t).Retrieve(context.Background(), target, "t", "q", 5)
	if err != nil {
		t.Fatalf("retrieve: %v", err)
	}
	if !res.Supported || len(res.Snippets) != 0 {
		t.Errorf("got %+v, want supported with no snippets", res)
	}
}

func TestRetrieveMalformedPayload(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})

	if _, err := testClient(t).Retrieve(context.Background(), target, "t", "q", 5); err == nil {
		t.Error("expected error for malformed body")
	}
}

func TestRetrieveInvalidURL(t *testing.T) {
	target := Target{BaseURL: "ftp://nope", ServerID: "s"}
	if _, err := testClient(t).Retrieve(context.Background(), target, "t", "q", 5); err == nil {
		t.Error("expected error for non-http URL")
	}
}

func TestAppend(t *testing.T) {
	var got map[string]any
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/memory/append" {
			t.Errorf("path = %s", r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer tok" {
			t.Errorf("auth = %q", auth)
		}
		json.NewDecoder(r.Body).Decode(&got)
		w.WriteHeader(http.StatusCreated)
	})
	target.Token = "tok"

	res, err := testClient(t).Append(context.Background(), target, "th-1", "question", "answer",
		map[string]any{"snippets_used": 2})
	if err != nil {
		t.Fatalf("append: %v", err)
	}
	if !res.Supported {
		t.Error("want Supported")
	}
	if got["user_message"] != "question" || got["assistant_message"] != "answer" {
		t.Errorf("payload = %v", got)
	}
	if got["metadata"] == nil {
		t.Error("metadata missing from payload")
	}
}

func TestAppendNotImplemented(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res, err := testClient(t).Append(context.Background(), target, "t", "u", "a", nil)
	if err != nil {
		t.Fatalf("404 must not be an error, got %v", err)
	}
	if res.Supported {
		t.Error("want Supported == false")
	}
}

func TestAppendServerError(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	if _, err := testClient(t).Append(context.Background(), target, "t", "u", "a", nil); err == nil {
		t.Error("expected error for 502")
	}
}

func TestStatus(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{"features": []string{"retrieve"}})
	})

	res, err := testClient(t).Status(context.Background(), target)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !res.Available || len(res.Features) != 1 || res.Features[0] != "retrieve" {
		t.Errorf("got %+v", res)
	}
}

func TestStatusDefaultFeatures(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	res, err := testClient(t).Status(context.Background(), target)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !res.Available || len(res.Features) != 2 {
		t.Errorf("got %+v, want default features", res)
	}
}

func TestStatusUnavailable(t *testing.T) {
	_, target := memoryServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	res, err := testClient(t).Status(context.Background(), target)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if res.Available {
		t.Error("want Available == false")
	}
}
