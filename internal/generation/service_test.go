package generation

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"gocloud.dev/blob/memblob"

	"adminpanel/internal/domain"
	"adminpanel/internal/domain/jsoncfg"
	"adminpanel/internal/events"
	"adminpanel/internal/providers/replicate"
	"adminpanel/internal/storage"
)

const (
	characterID = "0b5a3f6e-8d7e-4a57-9a43-3c1a4f0f1b11"
	otherID     = "7f1f2c9a-2b0e-4c55-8a1d-0e9b6a1d2c33"
	outputURI   = "https://x/img.png"
)

type harness struct {
	svc    *Service
	jobs   *fakeJobs
	db     *memoryStore
	blobs  *storage.BlobStore
	events *events.Recorder
}

func newHarness(t *testing.T, strategy string) *harness {
	t.Helper()
	bucket := memblob.OpenBucket(nil)
	t.Cleanup(func() { bucket.Close() })
	blobs, err := storage.NewBlobStore(bucket, "character-images", "https://cdn.example.test/character-images")
	if err != nil {
		t.Fatalf("NewBlobStore: %v", err)
	}
	jobs := &fakeJobs{
		submitJob: &domain.GenerationJob{ID: "j1", Status: domain.JobStatusSucceeded, Output: domain.JobOutput{outputURI}},
		downloads: map[string][]byte{outputURI: []byte("png-bytes")},
	}
	db := newMemoryStore()
	alloc, err := NewSequenceAllocator(strategy, db)
	if err != nil {
		t.Fatalf("NewSequenceAllocator: %v", err)
	}
	rec := &events.Recorder{}
	poller := replicate.NewPoller(jobs, replicate.PollOptions{Interval: time.Millisecond, Timeout: time.Second})
	svc := NewService(jobs, poller, referenceView{db}, db, alloc, blobs, Options{Events: rec})
	return &harness{svc: svc, jobs: jobs, db: db, blobs: blobs, events: rec}
}

func plainRequest(prompt string) Request {
	return Request{CharacterID: characterID, Prompt: jsoncfg.PlainPrompt(prompt)}
}

func TestGenerateWithImmediateSuccess(t *testing.T) {
	h := newHarness(t, "")

	artifact, err := h.svc.Generate(context.Background(), plainRequest("draw a cat"))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if artifact.Sequence != 1 || artifact.Prompt != "draw a cat" || artifact.PredictionID != "j1" || artifact.Archived {
		t.Fatalf("artifact = %+v", artifact)
	}
	wantKey := characterID + "/1.png"
	if artifact.StoragePath != wantKey {
		t.Fatalf("storage path = %q, want %q", artifact.StoragePath, wantKey)
	}
	if artifact.ImageURL != "https://cdn.example.test/character-images/"+wantKey {
		t.Fatalf("image url = %q", artifact.ImageURL)
	}
	if h.jobs.fetchCalls != 0 {
		t.Fatalf("fetch calls = %d, want 0", h.jobs.fetchCalls)
	}
	data, err := h.blobs.Read(context.Background(), wantKey)
	if err != nil || string(data) != "png-bytes" {
		t.Fatalf("stored blob = %q, %v", data, err)
	}
	if len(h.db.pending) != 0 {
		t.Fatalf("pending markers left: %v", h.db.pending)
	}
	if len(h.events.Events) != 1 || h.events.Events[0].Type != events.TypeImageGenerated {
		t.Fatalf("events = %+v", h.events.Events)
	}
}

func TestGeneratePollsUntilSucceeded(t *testing.T) {
	h := newHarness(t, "")
	h.jobs.submitJob = &domain.GenerationJob{ID: "j2", Status: domain.JobStatusStarting}
	h.jobs.statuses = []*domain.GenerationJob{
		{Status: domain.JobStatusProcessing},
		{Status: domain.JobStatusSucceeded, Output: domain.JobOutput{"https://x/out.webp"}},
	}
	h.jobs.downloads["https://x/out.webp"] = []byte("webp")

	artifact, err := h.svc.Generate(context.Background(), plainRequest("castle"))
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if h.jobs.fetchCalls != 2 {
		t.Fatalf("fetch calls = %d, want 2", h.jobs.fetchCalls)
	}
	if !strings.HasSuffix(artifact.StoragePath, "/1.webp") {
		t.Fatalf("storage path = %q", artifact.StoragePath)
	}
}

func TestGenerateResolvesJSONPromptText(t *testing.T) {
	h := newHarness(t, "")
	prompt, err := jsoncfg.ParsePromptText(`{"prompt":"a dog"}`)
	if err != nil {
		t.Fatalf("ParsePromptText: %v", err)
	}

	artifact, err := h.svc.Generate(context.Background(), Request{CharacterID: characterID, Prompt: prompt})
	if err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	if h.jobs.submitted[0].Prompt != "a dog" || artifact.Prompt != "a dog" {
		t.Fatalf("submitted prompt = %q, stored = %q", h.jobs.submitted[0].Prompt, artifact.Prompt)
	}
}

func TestGenerateNormalizesParameters(t *testing.T) {
	h := newHarness(t, "")
	req := plainRequest("hero portrait")
	req.Resolution = " 2k "
	req.AspectRatio = "16:9"
	req.OutputFormat = "PNG"

	if _, err := h.svc.Generate(context.Background(), req); err != nil {
		t.Fatalf("Generate returned error: %v", err)
	}
	in := h.jobs.submitted[0]
	if in.Resolution != "2K" || in.AspectRatio != "16:9" || in.OutputFormat != "png" {
		t.Fatalf("input = %+v", in)
	}
}

func TestGenerateReferenceSelection(t *testing.T) {
	refs := []domain.ReferenceInput{
		{ID: "r1", CharacterID: characterID, ImageURL: "https://x/r1.png", IsDefault: true},
		{ID: "r2", CharacterID: characterID, ImageURL: "https://x/r2.png"},
		{ID: "r3", CharacterID: characterID, ImageURL: "https://x/r3.png", IsDefault: true},
		{ID: "r4", CharacterID: otherID, ImageURL: "https://x/r4.png", IsDefault: true},
	}
	cases := []struct {
		name string
		ids  []string
		want []string
	}{
		{name: "defaults when none selected", ids: nil, want: []string{"https://x/r1.png", "https://x/r3.png"}},
		{name: "blank ids count as none", ids: []string{" ", ""}, want: []string{"https://x/r1.png", "https://x/r3.png"}},
		{name: "explicit ids intersected with character", ids: []string{"r2", "r4", "missing", "r2"}, want: []string{"https://x/r2.png"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "")
			h.db.refs = refs
			req := plainRequest("knight")
			req.ReferenceIDs = tc.ids

			if _, err := h.svc.Generate(context.Background(), req); err != nil {
				t.Fatalf("Generate returned error: %v", err)
			}
			got := h.jobs.submitted[0].ImageInput
			if strings.Join(got, ",") != strings.Join(tc.want, ",") {
				t.Fatalf("image_input = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestGenerateRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name string
		req  Request
	}{
		{name: "missing character", req: Request{Prompt: jsoncfg.PlainPrompt("x")}},
		{name: "malformed character", req: Request{CharacterID: "abc", Prompt: jsoncfg.PlainPrompt("x")}},
		{name: "blank prompt", req: Request{CharacterID: characterID, Prompt: jsoncfg.PlainPrompt("   ")}},
		{name: "empty structured prompt", req: Request{CharacterID: characterID, Prompt: jsoncfg.Structured(jsoncfg.StructuredPrompt{})}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			h := newHarness(t, "")
			_, err := h.svc.Generate(context.Background(), tc.req)
			if !errors.Is(err, domain.ErrInvalidInput) {
				t.Fatalf("err = %v, want ErrInvalidInput", err)
			}
			if len(h.jobs.submitted) != 0 {
				t.Fatalf("job must not be submitted")
			}
		})
	}
}

func TestGenerateSurfacesRemoteErrorDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"detail":"rate limited"}`)
	}))
	defer srv.Close()

	h := newHarness(t, "")
	client := replicate.NewClient(replicate.Options{APIToken: "tok", BaseURL: srv.URL})
	h.svc.jobs = client
	h.svc.waiter = replicate.NewPoller(client, replicate.PollOptions{})

	_, err := h.svc.Generate(context.Background(), plainRequest("draw a cat"))
	if !errors.Is(err, domain.ErrRemoteService) {
		t.Fatalf("err = %v, want ErrRemoteService", err)
	}
	if !strings.Contains(err.Error(), "rate limited") {
		t.Fatalf("err = %q, want it to mention the remote detail", err.Error())
	}
}

func TestGenerateJobFailureAllocatesNothing(t *testing.T) {
	h := newHarness(t, "")
	h.jobs.submitJob = &domain.GenerationJob{ID: "j3", Status: domain.JobStatusFailed, Error: "NSFW content detected"}

	_, err := h.svc.Generate(context.Background(), plainRequest("x"))
	if !errors.Is(err, domain.ErrJobFailed) || !strings.Contains(err.Error(), "NSFW") {
		t.Fatalf("err = %v, want ErrJobFailed with job message", err)
	}
	if len(h.db.counters) != 0 || len(h.db.pending) != 0 {
		t.Fatalf("no sequence or marker expected")
	}
}

func TestGenerateDownloadFailure(t *testing.T) {
	h := newHarness(t, "")
	delete(h.jobs.downloads, outputURI)

	_, err := h.svc.Generate(context.Background(), plainRequest("x"))
	if !errors.Is(err, domain.ErrDownload) {
		t.Fatalf("err = %v, want ErrDownload", err)
	}
}

type missingBucketStore struct{ *storage.BlobStore }

func (missingBucketStore) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	return "", fmt.Errorf("%w: %q: Bucket not found", domain.ErrBucketNotFound, "character-images")
}

func TestGenerateBucketNotFoundWritesNoRecord(t *testing.T) {
	h := newHarness(t, "")
	h.svc.store = missingBucketStore{h.blobs}

	_, err := h.svc.Generate(context.Background(), plainRequest("draw a cat"))
	if !errors.Is(err, domain.ErrBucketNotFound) {
		t.Fatalf("err = %v, want ErrBucketNotFound", err)
	}
	msg := err.Error()
	if !strings.Contains(msg, `"character-images"`) || !strings.Contains(msg, "create it") {
		t.Fatalf("err = %q, want bucket name and creation hint", msg)
	}
	if len(h.db.artifacts) != 0 || len(h.db.pending) != 0 {
		t.Fatalf("artifacts = %d, pending = %d; want none", len(h.db.artifacts), len(h.db.pending))
	}
}

func TestGenerateCommitFailureRemovesUploadedBlob(t *testing.T) {
	h := newHarness(t, "")
	h.db.commitErr = fmt.Errorf("%w: connection reset", domain.ErrPersistence)

	_, err := h.svc.Generate(context.Background(), plainRequest("x"))
	if !errors.Is(err, domain.ErrPersistence) || !errors.Is(err, domain.ErrArtifactNotSaved) {
		t.Fatalf("err = %v, want ErrPersistence and ErrArtifactNotSaved", err)
	}
	if _, err := h.blobs.Read(context.Background(), characterID+"/1.png"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("uploaded blob should be removed, read err = %v", err)
	}
	if len(h.db.pending) != 0 {
		t.Fatalf("pending marker should be discarded")
	}
}

func TestSequentialGenerationsNeverReuseSequence(t *testing.T) {
	for _, strategy := range []string{"counter", "scan"} {
		t.Run(strategy, func(t *testing.T) {
			h := newHarness(t, strategy)
			for want := 1; want <= 3; want++ {
				artifact, err := h.svc.Generate(context.Background(), plainRequest("x"))
				if err != nil {
					t.Fatalf("generation %d: %v", want, err)
				}
				if artifact.Sequence != want {
					t.Fatalf("sequence = %d, want %d", artifact.Sequence, want)
				}
			}
		})
	}
}

func TestSequenceStartsAtOneAndFollowsLatest(t *testing.T) {
	db := newMemoryStore()
	alloc := ScanAllocator{Artifacts: db}
	if seq, _ := alloc.Next(context.Background(), characterID); seq != 1 {
		t.Fatalf("first sequence = %d, want 1", seq)
	}
	db.artifacts = append(db.artifacts, domain.GeneratedArtifact{CharacterID: characterID, Sequence: 7})
	if seq, _ := alloc.Next(context.Background(), characterID); seq != 8 {
		t.Fatalf("sequence = %d, want 8", seq)
	}
	if seq, _ := alloc.Next(context.Background(), otherID); seq != 1 {
		t.Fatalf("other character sequence = %d, want 1", seq)
	}
}

// The scan strategy reads the latest number without a lock, so two
// allocations before either commit collide. The unique index turns the second
// commit into a persistence error instead of a duplicate row.
func TestScanAllocatorDuplicatesUnderInterleaving(t *testing.T) {
	db := newMemoryStore()
	alloc := ScanAllocator{Artifacts: db}
	ctx := context.Background()

	first, _ := alloc.Next(ctx, characterID)
	second, _ := alloc.Next(ctx, characterID)
	if first != second {
		t.Fatalf("expected duplicate sequence, got %d and %d", first, second)
	}

	if err := db.Commit(ctx, "p1", &domain.GeneratedArtifact{CharacterID: characterID, Sequence: first}); err != nil {
		t.Fatalf("first commit: %v", err)
	}
	err := db.Commit(ctx, "p2", &domain.GeneratedArtifact{CharacterID: characterID, Sequence: second})
	if !errors.Is(err, domain.ErrPersistence) {
		t.Fatalf("second commit err = %v, want ErrPersistence", err)
	}
}

func TestCounterAllocatorDoesNotDuplicateUnderInterleaving(t *testing.T) {
	db := newMemoryStore()
	alloc := CounterAllocator{Artifacts: db}
	ctx := context.Background()

	first, _ := alloc.Next(ctx, characterID)
	second, _ := alloc.Next(ctx, characterID)
	if first != 1 || second != 2 {
		t.Fatalf("sequences = %d, %d; want 1, 2", first, second)
	}
}

func TestNewSequenceAllocatorRejectsUnknownStrategy(t *testing.T) {
	if _, err := NewSequenceAllocator("random", newMemoryStore()); !errors.Is(err, domain.ErrInvalidConfiguration) {
		t.Fatalf("err = %v, want ErrInvalidConfiguration", err)
	}
}

func TestOutputURL(t *testing.T) {
	h := newHarness(t, "")
	h.jobs.statuses = []*domain.GenerationJob{{Status: domain.JobStatusSucceeded, Output: domain.JobOutput{"https://x/orig.png", "https://x/second.png"}}}

	uri, err := h.svc.OutputURL(context.Background(), "j1")
	if err != nil {
		t.Fatalf("OutputURL returned error: %v", err)
	}
	if uri != "https://x/orig.png" {
		t.Fatalf("uri = %q", uri)
	}

	h.jobs.statuses = []*domain.GenerationJob{{Status: domain.JobStatusProcessing}}
	h.jobs.fetchCalls = 0
	if _, err := h.svc.OutputURL(context.Background(), "j1"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for unfinished job", err)
	}
	if _, err := h.svc.OutputURL(context.Background(), " "); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("err = %v, want ErrInvalidInput", err)
	}
}

func TestOutputURLMapsRemoteNotFound(t *testing.T) {
	h := newHarness(t, "")
	h.jobs.fetchErr = &replicate.APIError{StatusCode: http.StatusNotFound, Detail: "Not found."}
	if _, err := h.svc.OutputURL(context.Background(), "gone"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestExtensionFromURI(t *testing.T) {
	cases := map[string]string{
		"https://x/img.png":                 "png",
		"https://x/a/b/img.JPG?sig=1":       "jpg",
		"https://x/out.webp#frag":           "webp",
		"https://x/no-extension":            "png",
		"https://x/odd.tar-gz":              "png",
		"https://x/dir.with.dots/file":      "png",
		"https://replicate.delivery/x.jpeg": "jpeg",
	}
	for uri, want := range cases {
		if got := extensionFromURI(uri); got != want {
			t.Fatalf("extensionFromURI(%q) = %q, want %q", uri, got, want)
		}
	}
}
