package inventory_repo

import (
	"testing"

	"github.com/Masterminds/squirrel"

	"stockledger/internal/domain/inventory"
)

func TestApplyRecordFilter(t *testing.T) {
	active := true

	tests := []struct {
		name     string
		filter   inventory.RecordFilter
		wantSQL  string
		wantArgs []any
	}{
		{
			name:     "no filter",
			filter:   inventory.RecordFilter{},
			wantSQL:  "SELECT id FROM inventory_records",
			wantArgs: nil,
		},
		{
			name:     "active only",
			filter:   inventory.RecordFilter{Active: &active},
			wantSQL:  "SELECT id FROM inventory_records WHERE active = $1",
			wantArgs: []any{true},
		},
		{
			name:     "low stock",
			filter:   inventory.RecordFilter{LowStock: true},
			wantSQL:  "SELECT id FROM inventory_records WHERE reorder_level > 0 AND quantity_on_hand - quantity_reserved <= reorder_level",
			wantArgs: nil,
		},
		{
			name:     "search",
			filter:   inventory.RecordFilter{Search: "sku"},
			wantSQL:  "SELECT id FROM inventory_records WHERE product_id ILIKE $1",
			wantArgs: []any{"%sku%"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			builder := squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
			q := builder.Select("id").From(recordsTable)
			q = applyRecordFilter(q, tt.filter)

			sql, args, err := q.ToSql()
			if err != nil {
				t.Fatalf("ToSql failed: %v", err)
			}
			if sql != tt.wantSQL {
				t.Errorf("SQL mismatch\nwant: %s\ngot:  %s", tt.wantSQL, sql)
			}
			if len(args) != len(tt.wantArgs) {
				t.Fatalf("args count mismatch\nwant: %d\ngot:  %d", len(tt.wantArgs), len(args))
			}
			for i := range args {
				if args[i] != tt.wantArgs[i] {
					t.Errorf("arg %d mismatch\nwant: %v\ngot:  %v", i, tt.wantArgs[i], args[i])
				}
			}
		})
	}
}
