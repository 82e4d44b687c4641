package api

import (
	"bytes"
	"context"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kdimtricp/arcwatch/internal/database"
	"github.com/kdimtricp/arcwatch/internal/detect"
	"github.com/kdimtricp/arcwatch/internal/models"
	"github.com/kdimtricp/arcwatch/internal/processing"
	"github.com/kdimtricp/arcwatch/internal/vision"
)

// scriptedFrame carries the brightness the analyzer reports for it.
type scriptedFrame struct {
	index int
	mean  float64
}

func (f *scriptedFrame) Width() int   { return 640 }
func (f *scriptedFrame) Height() int  { return 360 }
func (f *scriptedFrame) Close() error { return nil }

type scriptedSource struct {
	means []float64
	next  int
}

func (s *scriptedSource) Info() vision.Info {
	return vision.Info{FPS: 12, FrameCount: len(s.means), Width: 640, Height: 360}
}

func (s *scriptedSource) Next() (vision.Frame, error) {
	if s.next >= len(s.means) {
		return nil, io.EOF
	}
	f := &scriptedFrame{index: s.next, mean: s.means[s.next]}
	s.next++
	return f, nil
}

func (s *scriptedSource) Close() error { return nil }

// flashDecoder yields 2s of calm, a half-second global flash, then 3s of calm.
type flashDecoder struct{}

func (flashDecoder) Open(string) (vision.Source, error) {
	var means []float64
	for i := 0; i < 66; i++ {
		m := 60.0
		if i >= 24 && i < 30 {
			m = 90
		}
		means = append(means, m)
	}
	return &scriptedSource{means: means}, nil
}

type scriptedAnalyzer struct{}

func (scriptedAnalyzer) Prepare(f vision.Frame) (vision.Plane, error) {
	return f.(*scriptedFrame), nil
}

func (scriptedAnalyzer) Measure(p vision.Plane) (vision.Stats, error) {
	return vision.Stats{Mean: p.(*scriptedFrame).mean, Std: 5, BrightRatio: 0.001}, nil
}

func (scriptedAnalyzer) LargestChange(_, _ vision.Plane) (detect.Region, bool) {
	return detect.Region{}, false
}

func (scriptedAnalyzer) Encode(vision.Frame) ([]byte, error) {
	return []byte{0xff, 0xd8, 0xff, 0xd9}, nil
}

func (scriptedAnalyzer) Annotate(jpeg []byte, _ *detect.Box) ([]byte, error) {
	return jpeg, nil
}

func fileStatus(url string) string {
	resp, err := http.Get(url)
	if err != nil {
		return ""
	}
	defer resp.Body.Close()
	var f models.File
	if err := json.NewDecoder(resp.Body).Decode(&f); err != nil {
		return ""
	}
	return f.Status
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode, url)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func TestPipeline_UploadToEvents(t *testing.T) {
	env := setupTestApp(t)

	processor := processing.NewProcessor(processing.Dependencies{
		Files:     database.NewFileRepository(env.db),
		Events:    database.NewEventRepository(env.db),
		Snapshots: database.NewSnapshotRepository(env.db),
		Progress:  database.NewJobRepository(env.db),
		Videos:    env.app.Uploads,
		Images:    env.app.Images,
		Decoder:   flashDecoder{},
		Analyzer:  scriptedAnalyzer{},
	}, processing.Options{Detection: detect.DefaultAlgorithmConfig()})
	env.app.Reanalyzer = processor

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		defer close(workerDone)
		processing.NewWorker(env.queue, processor, nil).Serve(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-workerDone
	})

	ts := httptest.NewServer(env.handler)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/api/jobs", "application/json", bytes.NewBufferString(`{"name":"e2e"}`))
	require.NoError(t, err)
	var job models.Job
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&job))
	resp.Body.Close()

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("video", "flash.mp4")
	require.NoError(t, err)
	part.Write([]byte("video bytes"))
	require.NoError(t, mw.Close())

	resp, err = http.Post(ts.URL+"/api/jobs/"+job.ID+"/files", mw.FormDataContentType(), &body)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var file models.File
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&file))
	resp.Body.Close()

	require.Eventually(t, func() bool {
		return fileStatus(ts.URL+"/api/files/"+file.ID) == models.FileStatusDone
	}, 5*time.Second, 20*time.Millisecond)
	var got models.File
	getJSON(t, ts.URL+"/api/files/"+file.ID, &got)
	assert.Equal(t, 12.0, got.FPS)
	assert.Equal(t, 66, got.FrameCount)

	var events []models.Event
	getJSON(t, ts.URL+"/api/files/"+file.ID+"/events", &events)
	require.Len(t, events, 1)
	assert.Equal(t, models.EventTypeFlash, events[0].Type)

	var snaps []models.Snapshot
	getJSON(t, ts.URL+"/api/files/"+file.ID+"/snapshots", &snaps)
	require.Len(t, snaps, 1)
	assert.Equal(t, events[0].ID, snaps[0].EventID)

	var finished models.Job
	getJSON(t, ts.URL+"/api/jobs/"+job.ID, &finished)
	assert.Equal(t, models.JobStatusFinished, finished.Status)
	assert.Equal(t, 1.0, finished.Progress)

	// Reanalysis replaces the results instead of adding to them.
	resp, err = http.Post(ts.URL+"/api/files/"+file.ID+"/reanalyze", "", nil)
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	require.Eventually(t, func() bool {
		return fileStatus(ts.URL+"/api/files/"+file.ID) == models.FileStatusDone
	}, 5*time.Second, 20*time.Millisecond)
	getJSON(t, ts.URL+"/api/files/"+file.ID+"/events", &events)
	assert.Len(t, events, 1)
}
