package processing

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/kdimtricp/arcwatch/internal/database"
	"github.com/kdimtricp/arcwatch/internal/detect"
	"github.com/kdimtricp/arcwatch/internal/models"
	"github.com/kdimtricp/arcwatch/internal/vision"
)

const (
	fakeWidth  = 1000
	fakeHeight = 500
)

// frameSpec describes one synthetic frame.
type frameSpec struct {
	mean   float64
	bright float64
	region *detect.Region
	bad    bool
	panics bool
}

func repeat(n int, f frameSpec) []frameSpec {
	out := make([]frameSpec, n)
	for i := range out {
		out[i] = f
	}
	return out
}

func concat(parts ...[]frameSpec) []frameSpec {
	var out []frameSpec
	for _, p := range parts {
		out = append(out, p...)
	}
	return out
}

type fakeFrame struct {
	index int
	spec  frameSpec
}

func (f *fakeFrame) Width() int   { return fakeWidth }
func (f *fakeFrame) Height() int  { return fakeHeight }
func (f *fakeFrame) Close() error { return nil }

type fakePlane struct {
	frame *fakeFrame
}

func (p *fakePlane) Close() error { return nil }

type fakeSource struct {
	info   vision.Info
	frames []frameSpec
	next   int
	// onFrame runs before each frame is returned.
	onFrame func(index int)
	closed  bool
}

func (s *fakeSource) Info() vision.Info { return s.info }

func (s *fakeSource) Next() (vision.Frame, error) {
	if s.next >= len(s.frames) {
		return nil, io.EOF
	}
	i := s.next
	s.next++
	if s.onFrame != nil {
		s.onFrame(i)
	}
	if s.frames[i].bad {
		return nil, vision.ErrBadFrame
	}
	return &fakeFrame{index: i, spec: s.frames[i]}, nil
}

func (s *fakeSource) Close() error {
	s.closed = true
	return nil
}

type fakeDecoder struct {
	source  *fakeSource
	openErr error
	opened  string
}

func (d *fakeDecoder) Open(path string) (vision.Source, error) {
	d.opened = path
	if d.openErr != nil {
		return nil, d.openErr
	}
	return d.source, nil
}

type fakeAnalyzer struct{}

func (fakeAnalyzer) Prepare(f vision.Frame) (vision.Plane, error) {
	ff := f.(*fakeFrame)
	if ff.spec.panics {
		panic("corrupt plane")
	}
	return &fakePlane{frame: ff}, nil
}

func (fakeAnalyzer) Measure(p vision.Plane) (vision.Stats, error) {
	fp := p.(*fakePlane)
	return vision.Stats{Mean: fp.frame.spec.mean, Std: 5, BrightRatio: fp.frame.spec.bright}, nil
}

func (fakeAnalyzer) LargestChange(_, cur vision.Plane) (detect.Region, bool) {
	fp := cur.(*fakePlane)
	if fp.frame.spec.region == nil {
		return detect.Region{}, false
	}
	return *fp.frame.spec.region, true
}

func (fakeAnalyzer) Encode(f vision.Frame) ([]byte, error) {
	return []byte(fmt.Sprintf("frame-%d", f.(*fakeFrame).index)), nil
}

func (fakeAnalyzer) Annotate(jpeg []byte, box *detect.Box) ([]byte, error) {
	if box == nil {
		return jpeg, nil
	}
	return append(append([]byte{}, jpeg...), "+box"...), nil
}

// memStore implements every store interface over maps.
type memStore struct {
	mu        sync.Mutex
	files     map[string]*models.File
	events    map[string]*models.Event
	snapshots map[string]*models.Snapshot
	images    map[string][]byte

	progressCalls map[string]int
	statusHistory []string

	failStatusOnce  bool
	failEventCreate bool
	failSnapDelete  bool
	// failProcessing rejects every write of the processing status.
	failProcessing bool
	// failSeedReads fails MaxSequence and the first ListByConfidence call.
	failSeedReads bool
}

func newMemStore() *memStore {
	return &memStore{
		files:         map[string]*models.File{},
		events:        map[string]*models.Event{},
		snapshots:     map[string]*models.Snapshot{},
		images:        map[string][]byte{},
		progressCalls: map[string]int{},
	}
}

func (m *memStore) addFile(status string) *models.File {
	f := models.NewFile("job-1", "clip.mp4", "stored.mp4", "video/mp4", 100)
	f.Status = status
	m.files[f.ID] = f
	return f
}

func (m *memStore) Get(_ context.Context, id string) (*models.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[id]
	if !ok {
		return nil, fmt.Errorf("file: %w", database.ErrNotFound)
	}
	c := *f
	return &c, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id, status, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failStatusOnce && (status == models.FileStatusDone || status == models.FileStatusFailed) {
		m.failStatusOnce = false
		return errors.New("database is locked")
	}
	if m.failProcessing && status == models.FileStatusProcessing {
		return errors.New("database is locked")
	}
	f, ok := m.files[id]
	if !ok {
		return database.ErrNotFound
	}
	f.Status = status
	f.Message = message
	m.statusHistory = append(m.statusHistory, status)
	return nil
}

func (m *memStore) UpdateMedia(_ context.Context, id string, fps float64, frameCount int, duration float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := m.files[id]
	f.FPS, f.FrameCount, f.DurationSec = fps, frameCount, duration
	return nil
}

func (m *memStore) RecomputeProgress(_ context.Context, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.progressCalls[jobID]++
	return nil
}

func (m *memStore) Path(name string) (string, error) {
	return "/videos/" + name, nil
}

func (m *memStore) SaveSnapshot(fileID string, seq int, jpeg []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := fmt.Sprintf("%s/%04d.jpg", fileID, seq)
	m.images[name] = jpeg
	return name, nil
}

func (m *memStore) DeleteFile(name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.images, name)
	return nil
}

func (m *memStore) fileEvents(fileID string) []*models.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Event
	for _, e := range m.events {
		if e.FileID == fileID {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Sequence < out[j].Sequence })
	return out
}

type memEvents struct{ *memStore }

func (m memEvents) Create(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failEventCreate {
		return errors.New("insert failed")
	}
	c := *ev
	m.events[ev.ID] = &c
	return nil
}

func (m memEvents) Update(_ context.Context, ev *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.events[ev.ID]; !ok {
		return database.ErrNotFound
	}
	c := *ev
	m.events[ev.ID] = &c
	return nil
}

func (m memEvents) MaxSequence(_ context.Context, fileID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSeedReads {
		return 0, errors.New("read failed")
	}
	seq := 0
	for _, e := range m.events {
		if e.FileID == fileID && e.Sequence > seq {
			seq = e.Sequence
		}
	}
	return seq, nil
}

func (m memEvents) DeleteByFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, e := range m.events {
		if e.FileID == fileID {
			delete(m.events, id)
		}
	}
	return nil
}

type memSnapshots struct{ *memStore }

func (m memSnapshots) Create(_ context.Context, s *models.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c := *s
	m.snapshots[s.ID] = &c
	return nil
}

func (m memSnapshots) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSnapDelete {
		return errors.New("delete failed")
	}
	delete(m.snapshots, id)
	return nil
}

func (m memSnapshots) ListByConfidence(_ context.Context, fileID string) ([]*models.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSeedReads {
		m.failSeedReads = false
		return nil, errors.New("read failed")
	}
	var out []*models.Snapshot
	for _, s := range m.snapshots {
		if s.FileID == fileID {
			c := *s
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Confidence != out[j].Confidence {
			return out[i].Confidence > out[j].Confidence
		}
		return out[i].Sequence < out[j].Sequence
	})
	return out, nil
}

func (m memSnapshots) MaxSequence(_ context.Context, fileID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failSeedReads {
		return 0, errors.New("read failed")
	}
	seq := 0
	for _, s := range m.snapshots {
		if s.FileID == fileID && s.Sequence > seq {
			seq = s.Sequence
		}
	}
	return seq, nil
}

func (m memSnapshots) DeleteByFile(_ context.Context, fileID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, s := range m.snapshots {
		if s.FileID == fileID {
			delete(m.snapshots, id)
		}
	}
	return nil
}

// addSnapshot stores a snapshot row and its image directly.
func (m *memStore) addSnapshot(fileID string, seq int, confidence float64) *models.Snapshot {
	s := models.NewSnapshot(fileID, "ev-old")
	s.Sequence = seq
	s.Confidence = confidence
	s.ImagePath = fmt.Sprintf("%s/old-%d.jpg", fileID, seq)
	m.snapshots[s.ID] = s
	m.images[s.ImagePath] = []byte("old")
	return s
}

type fakeProber struct {
	fps      float64
	err      error
	duration float64
	calls    int
}

func (p *fakeProber) FPS(context.Context, string) (float64, error) {
	p.calls++
	return p.fps, p.err
}

func (p *fakeProber) Duration(context.Context, string) (float64, error) {
	if p.duration <= 0 {
		return 0, errors.New("no duration")
	}
	return p.duration, nil
}

func newTestProcessor(store *memStore, dec *fakeDecoder, prober MediaProber) *Processor {
	deps := Dependencies{
		Files:     store,
		Events:    memEvents{store},
		Snapshots: memSnapshots{store},
		Progress:  store,
		Videos:    store,
		Images:    store,
		Decoder:   dec,
		Analyzer:  fakeAnalyzer{},
		Prober:    prober,
	}
	return NewProcessor(deps, Options{Detection: detect.DefaultAlgorithmConfig()})
}

func flashFrames() []frameSpec {
	calm := frameSpec{mean: 60, bright: 0.001}
	return concat(
		repeat(24, calm),
		repeat(6, frameSpec{mean: 90, bright: 0.001}),
		repeat(36, calm),
	)
}
