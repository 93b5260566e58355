package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"neckcare-posture/internal/models"
)

// MemoryDailySummaryStore 内存每日汇总存储（单元测试用）
type MemoryDailySummaryStore struct {
	mu   sync.Mutex
	rows map[string]map[string]*models.DailySummary // user_id → date → row
}

// NewMemoryDailySummaryStore 创建内存每日汇总存储
func NewMemoryDailySummaryStore() *MemoryDailySummaryStore {
	return &MemoryDailySummaryStore{
		rows: make(map[string]map[string]*models.DailySummary),
	}
}

var _ DailySummaryStore = (*MemoryDailySummaryStore)(nil)

// UpsertDaily 写入/覆盖某日汇总
func (r *MemoryDailySummaryStore) UpsertDaily(ctx context.Context, userID, date string, sumWeighted, weightSeconds float64, count int) (*models.DailySummary, error) {
	prevDate, err := PrevDateISO(date)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q: %w", date, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	userRows, ok := r.rows[userID]
	if !ok {
		userRows = make(map[string]*models.DailySummary)
		r.rows[userID] = userRows
	}

	prevGoodDay := 0
	if prev, ok := userRows[prevDate]; ok {
		prevGoodDay = prev.GoodDay
	}
	goodDay := prevGoodDay
	if count <= models.GoodDayMaxWarnings {
		goodDay++
	}

	summary := &models.DailySummary{
		UserID:        userID,
		Date:          date,
		SumWeighted:   sumWeighted,
		WeightSeconds: weightSeconds,
		Count:         count,
		GoodDay:       goodDay,
	}
	if weightSeconds > 0 {
		avg := sumWeighted / weightSeconds
		summary.AvgAngle = &avg
	}
	userRows[date] = summary

	copied := *summary
	return &copied, nil
}

// GetByDate 查询某日汇总
func (r *MemoryDailySummaryStore) GetByDate(ctx context.Context, userID, date string) (*models.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rows[userID][date]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

// GetRange 查询 [fromDate, toDate] 的汇总行（升序）
func (r *MemoryDailySummaryStore) GetRange(ctx context.Context, userID, fromDate, toDate string) ([]models.DailySummary, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var summaries []models.DailySummary
	for date, s := range r.rows[userID] {
		if date >= fromDate && date <= toDate {
			summaries = append(summaries, *s)
		}
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].Date < summaries[j].Date
	})
	return summaries, nil
}

// GetLatestGoodDay 查询 uptoDate（含）之前最近一行的 good_day
func (r *MemoryDailySummaryStore) GetLatestGoodDay(ctx context.Context, userID, uptoDate string) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	latestDate := ""
	goodDay := 0
	for date, s := range r.rows[userID] {
		if date <= uptoDate && date > latestDate {
			latestDate = date
			goodDay = s.GoodDay
		}
	}
	return goodDay, nil
}
