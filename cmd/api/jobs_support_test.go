package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/pdf-pipeline/internal/jobs"
)

func newStatusRouter(store *jobs.Store) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/status", statusListHandler(store))
	router.GET("/status/:id", statusHandler(store))
	return router
}

func TestStatusHandlerFound(t *testing.T) {
	store := jobs.NewStore()
	store.Put(jobs.Record{
		ID:             "job-1",
		FileName:       "doc.pdf",
		OperationKind:  jobs.OperationExtractText,
		SourceFilePath: "/in/doc.pdf",
		OutputFilePath: "/out/extracted_doc.txt",
		Status:         jobs.StatusProcessing,
		Progress:       45,
		RequestTime:    time.Now().UTC(),
	})

	router := newStatusRouter(store)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/job-1", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}

	var record jobs.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &record); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if record.ID != "job-1" || record.Status != jobs.StatusProcessing || record.Progress != 45 {
		t.Fatalf("unexpected record: %#v", record)
	}
}

func TestStatusHandlerNotFound(t *testing.T) {
	router := newStatusRouter(jobs.NewStore())
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if body["code"] != "JOB_NOT_FOUND" {
		t.Fatalf("expected JOB_NOT_FOUND, got %v", body)
	}
}

func TestStatusListHandler(t *testing.T) {
	store := jobs.NewStore()
	for _, id := range []string{"job-1", "job-2", "job-3"} {
		store.Put(jobs.Record{
			ID:            id,
			FileName:      id + ".pdf",
			OperationKind: jobs.OperationDeletePage,
			Status:        jobs.StatusWaiting,
			RequestTime:   time.Now().UTC(),
		})
	}

	router := newStatusRouter(store)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/status", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var records []jobs.Record
	if err := json.Unmarshal(rec.Body.Bytes(), &records); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(records) != 3 {
		t.Fatalf("expected 3 records, got %d", len(records))
	}
}
