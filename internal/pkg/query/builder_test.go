package query

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBuilder(t *testing.T) {
	cutoff := time.Date(2024, 3, 2, 9, 0, 0, 0, time.UTC)

	tests := []struct {
		name       string
		builder    *Builder
		wantSQL    string
		wantParams map[string]interface{}
	}{
		{
			name:       "select all",
			builder:    From("products"),
			wantSQL:    "SELECT * FROM products",
			wantParams: map[string]interface{}{},
		},
		{
			name:       "repeated select appends",
			builder:    From("products").Select("product_id").Select("head_sequence", "head_hash"),
			wantSQL:    "SELECT product_id, head_sequence, head_hash FROM products",
			wantParams: map[string]interface{}{},
		},
		{
			name: "product page resumes after token",
			builder: From("products").
				Select("product_id", "status").
				Where(Eq("status", "in_transit")).
				Where(Gt("product_id", "coffee-001")).
				OrderBy("product_id", Asc).
				Limit(51),
			wantSQL: "SELECT product_id, status FROM products WHERE status = @p0 AND product_id > @p1 ORDER BY product_id ASC LIMIT @limit",
			wantParams: map[string]interface{}{
				"p0":    "in_transit",
				"p1":    "coffee-001",
				"limit": int64(51),
			},
		},
		{
			name: "chain range scan",
			builder: From("activity_records").
				Select("sequence", "hash").
				Where(Eq("product_id", "coffee-001")).
				Where(Between("sequence", int64(256), int64(300))).
				OrderBy("sequence", Asc).
				Limit(256),
			wantSQL: "SELECT sequence, hash FROM activity_records WHERE product_id = @p0 AND (sequence >= @p1 AND sequence <= @p2) ORDER BY sequence ASC LIMIT @limit",
			wantParams: map[string]interface{}{
				"p0":    "coffee-001",
				"p1":    int64(256),
				"p2":    int64(300),
				"limit": int64(256),
			},
		},
		{
			name: "chain head",
			builder: From("activity_records").
				Where(Eq("product_id", "coffee-001")).
				OrderBy("sequence", Desc).
				Limit(1),
			wantSQL: "SELECT * FROM activity_records WHERE product_id = @p0 ORDER BY sequence DESC LIMIT @limit",
			wantParams: map[string]interface{}{
				"p0":    "coffee-001",
				"limit": int64(1),
			},
		},
		{
			name: "outbox claim with expired lease",
			builder: From("outbox_events").
				Select("event_id").
				Where(Or(
					Eq("status", "pending"),
					And(Eq("status", "processing"), Lt("claimed_at", cutoff)),
				)).
				OrderBy("created_at", Asc).
				OrderBy("event_id", Asc),
			wantSQL: "SELECT event_id FROM outbox_events WHERE (status = @p0 OR (status = @p1 AND claimed_at < @p2)) ORDER BY created_at ASC, event_id ASC",
			wantParams: map[string]interface{}{
				"p0": "pending",
				"p1": "processing",
				"p2": cutoff,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stmt := tt.builder.Build()
			assert.Equal(t, tt.wantSQL, stmt.SQL)
			assert.Equal(t, tt.wantParams, stmt.Params)
		})
	}
}

func TestBuilder_Immutability(t *testing.T) {
	base := From("activity_records").Where(Eq("product_id", "coffee-001"))

	head := base.OrderBy("sequence", Desc).Limit(1)
	page := base.Where(Gte("sequence", int64(10)))

	assert.Equal(t, "SELECT * FROM activity_records WHERE product_id = @p0", base.Build().SQL)
	assert.Equal(t, "SELECT * FROM activity_records WHERE product_id = @p0 ORDER BY sequence DESC LIMIT @limit", head.Build().SQL)
	assert.Equal(t, "SELECT * FROM activity_records WHERE product_id = @p0 AND sequence >= @p1", page.Build().SQL)
}

func TestCondition_ParamIndex(t *testing.T) {
	tests := []struct {
		cond    Condition
		wantSQL string
	}{
		{Eq("owner", "acme"), "owner = @p4"},
		{Gt("product_id", "a"), "product_id > @p4"},
		{Gte("sequence", int64(1)), "sequence >= @p4"},
		{Lt("claimed_at", "t"), "claimed_at < @p4"},
		{Lte("sequence", int64(9)), "sequence <= @p4"},
		{Between("sequence", int64(1), int64(9)), "(sequence >= @p4 AND sequence <= @p5)"},
		{Or(Eq("a", 1), Eq("b", 2), Eq("c", 3)), "(a = @p4 OR b = @p5 OR c = @p6)"},
	}

	for _, tt := range tests {
		t.Run(tt.wantSQL, func(t *testing.T) {
			sql, params := tt.cond.SQL(4)
			assert.Equal(t, tt.wantSQL, sql)
			assert.Contains(t, params, "p4")
		})
	}
}
