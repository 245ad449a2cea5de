package views

import (
	"slices"
	"sync"
	"time"
)

// BannerTTL is how long an inline error stays up.
const BannerTTL = 5 * time.Second

// PageData is everything the page template needs.
type PageData struct {
	Loading   bool           `json:"loading"`
	Banner    string         `json:"banner,omitempty"`
	Alerts    []string       `json:"alerts,omitempty"`
	Current   *CurrentView   `json:"current,omitempty"`
	Forecast  []ForecastCard `json:"forecast"`
	History   HistoryView    `json:"history"`
	UnitLabel string         `json:"unit_label"`
}

// Page holds the view state of one session. It is safe for concurrent use.
type Page struct {
	mu        sync.Mutex
	data      PageData
	bannerSeq uint64

	// afterFunc schedules banner removal; replaced in tests.
	afterFunc func(time.Duration, func()) *time.Timer
}

func NewPage() *Page {
	return &Page{
		data:      PageData{History: History(nil), Forecast: []ForecastCard{}},
		afterFunc: time.AfterFunc,
	}
}

// ShowError replaces the inline banner. The banner removes itself after
// BannerTTL; an earlier banner's timer never removes a newer banner.
func (p *Page) ShowError(msg string) {
	p.mu.Lock()
	p.bannerSeq++
	seq := p.bannerSeq
	p.data.Banner = msg
	p.mu.Unlock()

	p.afterFunc(BannerTTL, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.bannerSeq == seq {
			p.data.Banner = ""
		}
	})
}

func (p *Page) ClearError() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bannerSeq++
	p.data.Banner = ""
}

// ShowLoading replaces the weather panels with the loading placeholder.
func (p *Page) ShowLoading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Loading = true
	p.data.Current = nil
	p.data.Forecast = []ForecastCard{}
}

func (p *Page) HideLoading() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Loading = false
}

// Alert queues a message that is shown once, on the next snapshot.
func (p *Page) Alert(msg string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Alerts = append(p.data.Alerts, msg)
}

// ShowCurrent also ends the loading state.
func (p *Page) ShowCurrent(v CurrentView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Current = &v
	p.data.Loading = false
}

func (p *Page) ShowForecast(cards []ForecastCard) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.Forecast = slices.Clone(cards)
}

func (p *Page) ShowHistory(h HistoryView) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.History = h
}

func (p *Page) SetUnitLabel(label string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.data.UnitLabel = label
}

// Snapshot copies the current state for rendering and drains queued alerts.
func (p *Page) Snapshot() PageData {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := p.copyLocked()
	p.data.Alerts = nil
	return out
}

// Peek copies the current state and leaves queued alerts for the next
// Snapshot.
func (p *Page) Peek() PageData {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.copyLocked()
}

func (p *Page) copyLocked() PageData {
	out := p.data
	if p.data.Current != nil {
		c := *p.data.Current
		out.Current = &c
	}
	out.Alerts = slices.Clone(p.data.Alerts)
	out.Forecast = slices.Clone(p.data.Forecast)
	out.History.Entries = slices.Clone(p.data.History.Entries)
	return out
}
