// Package mock synthesizes Ad Library shaped ads so the pipeline can run
// without network access or credentials.
package mock

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
	"sync"
	"unicode"

	"go.uber.org/zap"

	"github.com/JakeFAU/adintel/internal/ads"
	"github.com/JakeFAU/adintel/internal/collector"
	"github.com/JakeFAU/adintel/internal/source/meta"
)

// Platform is the tag stamped on every synthesized record.
const Platform = "mock"

// Defaults for the generator.
const (
	DefaultMaxItems = 20
	DefaultPageSize = 10
)

// Vocabulary the generator draws from.
var (
	Brands    = []string{"Nike", "Adidas", "Puma", "Under Armour", "Reebok"}
	Headlines = []string{
		"Summer Sale - Up to 50% Off",
		"New Collection Just Dropped",
		"Limited Time Offer",
		"Free Shipping on Orders Over $50",
		"Shop the Latest Trends",
	}
	Bodies = []string{
		"Don't miss out on our biggest sale of the year",
		"Discover the perfect fit for your lifestyle",
		"Quality products at unbeatable prices",
		"Join millions of satisfied customers",
		"Upgrade your wardrobe today",
	}
	CallsToAction = []string{"Shop Now", "Learn More", "Sign Up", "Get Started", "Buy Now"}
)

// maxIDDraws bounds suffix redraws before a serial is appended.
const maxIDDraws = 64

// Realistic cost-per-mille band in USD used to derive impressions from spend.
const (
	minCPM = 5.0
	maxCPM = 15.0
)

// Config controls the generator. A zero Seed derives one from the clock.
type Config struct {
	Seed     uint64
	MaxItems int
	PageSize int
}

// Adapter implements collector.SourceAdapter with generated data.
type Adapter struct {
	cfg    Config
	clock  ads.Clock
	logger *zap.Logger

	mu     sync.Mutex
	rng    *rand.Rand
	issued map[string]struct{}
}

// New builds a generator. The clock anchors delivery dates.
func New(cfg Config, clock ads.Clock, logger *zap.Logger) *Adapter {
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = DefaultMaxItems
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = DefaultPageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	seed := cfg.Seed
	if seed == 0 {
		seed = uint64(clock.Now().UnixNano())
	}
	logger.Info("generating synthetic ads", zap.Uint64("seed", seed))
	return &Adapter{
		cfg:    cfg,
		clock:  clock,
		logger: logger,
		rng:    rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
		issued: make(map[string]struct{}),
	}
}

// Platform implements collector.SourceAdapter.
func (a *Adapter) Platform() string { return Platform }

type bounds struct {
	Lower int64 `json:"lower_bound"`
	Upper int64 `json:"upper_bound"`
}

type archivedAd struct {
	ID               string   `json:"id"`
	CreativeBodies   []string `json:"ad_creative_bodies"`
	LinkDescriptions []string `json:"ad_creative_link_descriptions"`
	LinkCaptions     []string `json:"ad_creative_link_captions"`
	LinkTitles       []string `json:"ad_creative_link_titles"`
	DeliveryStart    string   `json:"ad_delivery_start_time"`
	DeliveryStop     *string  `json:"ad_delivery_stop_time"`
	SnapshotURL      string   `json:"ad_snapshot_url"`
	Currency         string   `json:"currency"`
	FundingEntity    string   `json:"funding_entity"`
	PageName         string   `json:"page_name"`
	Impressions      bounds   `json:"impressions"`
	Spend            bounds   `json:"spend"`
}

// FetchRawItems returns up to PageSize generated ads. The cursor is the
// offset of the first ad on the page; a keyword yields at most MaxItems ads.
func (a *Adapter) FetchRawItems(ctx context.Context, keyword, cursor string) (collector.Page, error) {
	if err := ctx.Err(); err != nil {
		return collector.Page{}, err
	}
	offset := 0
	if cursor != "" {
		n, err := strconv.Atoi(cursor)
		if err != nil || n < 0 {
			return collector.Page{}, fmt.Errorf("invalid mock cursor %q", cursor)
		}
		offset = n
	}
	end := min(offset+a.cfg.PageSize, a.cfg.MaxItems)
	if offset >= end {
		return collector.Page{}, nil
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	items := make([]collector.RawItem, 0, end-offset)
	for i := offset; i < end; i++ {
		raw, err := json.Marshal(a.generate(keyword, i))
		if err != nil {
			return collector.Page{}, fmt.Errorf("encode mock ad: %w", err)
		}
		items = append(items, collector.RawItem{Keyword: keyword, Payload: raw})
	}
	page := collector.Page{Items: items}
	if end < a.cfg.MaxItems {
		page.Next = strconv.Itoa(end)
	}
	return page, nil
}

func (a *Adapter) generate(keyword string, i int) archivedAd {
	brand := pick(a.rng, Brands)
	id := a.newID(keyword, i)

	spendLower := 100 + a.rng.IntN(901)
	spendUpper := 1000 + a.rng.IntN(9001)
	cpm := minCPM + a.rng.Float64()*(maxCPM-minCPM)

	start := a.clock.Now().UTC().AddDate(0, 0, -(1 + a.rng.IntN(30)))
	return archivedAd{
		ID:               id,
		CreativeBodies:   []string{pick(a.rng, Headlines)},
		LinkDescriptions: []string{pick(a.rng, Bodies)},
		LinkCaptions:     []string{pick(a.rng, CallsToAction)},
		LinkTitles:       []string{brand + " - Official Store"},
		DeliveryStart:    start.Format("2006-01-02T15:04:05-0700"),
		SnapshotURL:      "https://www.facebook.com/ads/library/?id=" + id,
		Currency:         "USD",
		FundingEntity:    brand,
		PageName:         brand,
		Impressions: bounds{
			Lower: impressions(spendLower, cpm),
			Upper: impressions(spendUpper, cpm),
		},
		Spend: bounds{Lower: int64(spendLower), Upper: int64(spendUpper)},
	}
}

// newID draws a random suffix for the keyword slug and offset, redrawing
// until the id has not been issued by this adapter. Keywords that slug alike
// would otherwise collide. Callers hold a.mu.
func (a *Adapter) newID(keyword string, i int) string {
	prefix := fmt.Sprintf("%s_%d_", slug(keyword), i)
	id := prefix + strconv.Itoa(1000+a.rng.IntN(9000))
	for draws := 1; ; draws++ {
		if _, dup := a.issued[id]; !dup {
			a.issued[id] = struct{}{}
			return id
		}
		suffix := strconv.Itoa(1000 + a.rng.IntN(9000))
		if draws >= maxIDDraws {
			suffix += "_" + strconv.Itoa(len(a.issued))
		}
		id = prefix + suffix
	}
}

// Normalize maps a generated ad using the Graph API mapping.
func (a *Adapter) Normalize(item collector.RawItem) (ads.AdRecord, error) {
	return meta.NormalizeArchived(item.Payload, Platform)
}

func impressions(spend int, cpm float64) int64 {
	return int64(float64(spend) / cpm * 1000)
}

func pick(rng *rand.Rand, values []string) string {
	return values[rng.IntN(len(values))]
}

func slug(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case b.Len() > 0 && !strings.HasSuffix(b.String(), "-"):
			b.WriteByte('-')
		}
	}
	out := strings.TrimSuffix(b.String(), "-")
	if out == "" {
		return "ad"
	}
	return out
}
