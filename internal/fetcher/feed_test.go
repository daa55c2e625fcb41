package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"forex-observer/internal/market"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

func feedPayload() map[string]any {
	return map[string]any{
		"title": "Forex Rates - Live Streaming",
		"rows": []map[string]string{
			{"pair": "EUR/USD", "price": "1.0850", "change": "+0.12%"},
			{"pair": "USD/JPY", "price": "154.32"},
			{"pair": "XAU/USD", "price": "2,345.67", "change": "-0.08%"},
			{"pair": "GBP/USD", "price": "n/a"},
		},
	}
}

func TestFeedFetchSuccess(t *testing.T) {
	var gotPath, gotUA string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotUA = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(feedPayload())
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{
		BaseURL:   srv.URL,
		Timeout:   time.Second,
		UserAgent: "test-agent",
		Majors:    []string{"USD", "EUR", "JPY", "GBP"},
	}, noopLogger())

	snap, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}

	if gotPath != "/snapshot" {
		t.Fatalf("请求路径不正确: %s", gotPath)
	}
	if gotUA != "test-agent" {
		t.Fatalf("User-Agent 不正确: %s", gotUA)
	}

	// GBP/USD 的价格无法解析, 应被跳过。
	if len(snap.Pairs) != 3 {
		t.Fatalf("期望 3 个报价, 实际 %d", len(snap.Pairs))
	}

	price, ok := snap.PriceFor("XAUUSD")
	if !ok {
		t.Fatal("应能按规范化名称解析 XAU/USD")
	}
	if !price.Equal(decimal.RequireFromString("2345.67")) {
		t.Fatalf("千分位逗号应被去除, 实际 %s", price)
	}

	// 样本保留原始行文本, 含无法解析价格的行。
	if len(snap.PairsSample) != 4 {
		t.Fatalf("期望样本 4 行, 实际 %d", len(snap.PairsSample))
	}
	if len(snap.Changes) != 2 {
		t.Fatalf("期望 2 条变动信息, 实际 %d", len(snap.Changes))
	}

	wantMajors := []string{"EUR", "GBP", "JPY", "USD"}
	if len(snap.Majors) != len(wantMajors) {
		t.Fatalf("主要货币提取不正确: %v", snap.Majors)
	}
	for i, m := range wantMajors {
		if snap.Majors[i] != m {
			t.Fatalf("主要货币提取不正确: %v", snap.Majors)
		}
	}

	if snap.Title != "Forex Rates - Live Streaming" {
		t.Fatalf("标题不正确: %s", snap.Title)
	}
	if snap.Timestamp.IsZero() {
		t.Fatal("缺省时间戳应为当前时间")
	}
}

func TestFeedFetchSampleCap(t *testing.T) {
	rows := make([]map[string]string, 0, 15)
	for i := 0; i < 15; i++ {
		rows = append(rows, map[string]string{"pair": "EUR/USD", "price": "1.0850"})
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"title": "feed", "rows": rows})
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	snap, err := f.Fetch(context.Background())
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if len(snap.PairsSample) != 10 {
		t.Fatalf("样本应截断为 10 行, 实际 %d", len(snap.PairsSample))
	}
}

func TestFeedFetchHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(map[string]string{"errorType": "scrape_failed"})
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("HTTP 502 应返回错误")
	}
}

func TestFeedFetchNoRows(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"title": "feed", "rows": []any{}})
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("空行表应返回错误")
	}
}

func TestFeedFetchNoParseablePrices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"title": "feed",
			"rows":  []map[string]string{{"pair": "EUR/USD", "price": "—"}},
		})
	}))
	defer srv.Close()

	f := NewFeed(FeedOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := f.Fetch(context.Background()); err == nil {
		t.Fatal("全部价格不可解析应返回错误")
	}
}

func TestStaticReplaysSequence(t *testing.T) {
	snaps := []market.Snapshot{
		{Title: "one", Pairs: []market.Quote{{Pair: "EUR/USD", Price: decimal.RequireFromString("1.1999")}}},
		{Title: "two", Pairs: []market.Quote{{Pair: "EUR/USD", Price: decimal.RequireFromString("1.2001")}}},
	}

	s := NewStatic(snaps)
	ctx := context.Background()

	first, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("第一次 Fetch 不应报错: %v", err)
	}
	if first.Title != "one" {
		t.Fatalf("顺序不正确: %s", first.Title)
	}
	if first.Timestamp.IsZero() {
		t.Fatal("缺省时间戳应被填充")
	}

	second, err := s.Fetch(ctx)
	if err != nil {
		t.Fatalf("第二次 Fetch 不应报错: %v", err)
	}
	if second.Title != "two" {
		t.Fatalf("顺序不正确: %s", second.Title)
	}

	if _, err := s.Fetch(ctx); !errors.Is(err, ErrExhausted) {
		t.Fatalf("序列耗尽应返回 ErrExhausted, 实际 %v", err)
	}
}
