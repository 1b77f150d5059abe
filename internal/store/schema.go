package store

import (
	"entgo.io/ent/dialect/sql/schema"
	"entgo.io/ent/schema/field"
)

var (
	// PoolSnapshotsColumns holds the columns for the "pool_snapshots" table.
	PoolSnapshotsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "version", Type: field.TypeString, Unique: true},
		{Name: "sessions_served", Type: field.TypeInt, Default: 0},
		{Name: "item_count", Type: field.TypeInt},
		{Name: "created_at", Type: field.TypeInt64},
	}
	// PoolSnapshotsTable holds the schema information for the "pool_snapshots" table.
	PoolSnapshotsTable = &schema.Table{
		Name:       "pool_snapshots",
		Columns:    PoolSnapshotsColumns,
		PrimaryKey: []*schema.Column{PoolSnapshotsColumns[0]},
	}

	// PoolItemsColumns holds the columns for the "pool_items" table.
	PoolItemsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "item_id", Type: field.TypeString},
		{Name: "category", Type: field.TypeString},
		{Name: "discrimination", Type: field.TypeFloat64},
		{Name: "difficulty", Type: field.TypeFloat64},
		{Name: "guessing", Type: field.TypeFloat64, Default: 0},
		{Name: "sample_size", Type: field.TypeInt, Default: 0},
		{Name: "se_a", Type: field.TypeFloat64, Default: 0},
		{Name: "se_b", Type: field.TypeFloat64, Default: 0},
		{Name: "se_c", Type: field.TypeFloat64, Default: 0},
		{Name: "exposure_count", Type: field.TypeInt, Default: 0},
		{Name: "snapshot_id", Type: field.TypeInt},
	}
	// PoolItemsTable holds the schema information for the "pool_items" table.
	PoolItemsTable = &schema.Table{
		Name:       "pool_items",
		Columns:    PoolItemsColumns,
		PrimaryKey: []*schema.Column{PoolItemsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "pool_items_pool_snapshots_items",
				Columns:    []*schema.Column{PoolItemsColumns[11]},
				RefColumns: []*schema.Column{PoolSnapshotsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "poolitem_snapshot_id_item_id",
				Unique:  true,
				Columns: []*schema.Column{PoolItemsColumns[11], PoolItemsColumns[1]},
			},
		},
	}

	// SessionResultsColumns holds the columns for the "session_results" table.
	SessionResultsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeString},
		{Name: "sequence", Type: field.TypeInt64, Unique: true},
		{Name: "examinee_id", Type: field.TypeString},
		{Name: "pool_version", Type: field.TypeString},
		{Name: "seed", Type: field.TypeInt64},
		{Name: "theta", Type: field.TypeFloat64},
		{Name: "se", Type: field.TypeFloat64},
		{Name: "score", Type: field.TypeFloat64},
		{Name: "score_lower", Type: field.TypeFloat64},
		{Name: "score_upper", Type: field.TypeFloat64},
		{Name: "confidence", Type: field.TypeFloat64},
		{Name: "items", Type: field.TypeInt},
		{Name: "stop_reason", Type: field.TypeString},
		{Name: "coverage", Type: field.TypeString, Size: 2147483647},
		{Name: "finished_at", Type: field.TypeInt64},
	}
	// SessionResultsTable holds the schema information for the "session_results" table.
	SessionResultsTable = &schema.Table{
		Name:       "session_results",
		Columns:    SessionResultsColumns,
		PrimaryKey: []*schema.Column{SessionResultsColumns[0]},
		Indexes: []*schema.Index{
			{
				Name:    "sessionresult_examinee_id_sequence",
				Unique:  false,
				Columns: []*schema.Column{SessionResultsColumns[2], SessionResultsColumns[1]},
			},
		},
	}

	// ResponseRecordsColumns holds the columns for the "response_records" table.
	ResponseRecordsColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt, Increment: true},
		{Name: "sequence", Type: field.TypeInt},
		{Name: "item_id", Type: field.TypeString},
		{Name: "category", Type: field.TypeString},
		{Name: "correct", Type: field.TypeBool},
		{Name: "theta", Type: field.TypeFloat64},
		{Name: "se", Type: field.TypeFloat64},
		{Name: "fallback", Type: field.TypeBool, Default: false},
		{Name: "session_id", Type: field.TypeString},
	}
	// ResponseRecordsTable holds the schema information for the "response_records" table.
	ResponseRecordsTable = &schema.Table{
		Name:       "response_records",
		Columns:    ResponseRecordsColumns,
		PrimaryKey: []*schema.Column{ResponseRecordsColumns[0]},
		ForeignKeys: []*schema.ForeignKey{
			{
				Symbol:     "response_records_session_results_responses",
				Columns:    []*schema.Column{ResponseRecordsColumns[8]},
				RefColumns: []*schema.Column{SessionResultsColumns[0]},
				OnDelete:   schema.Cascade,
			},
		},
		Indexes: []*schema.Index{
			{
				Name:    "responserecord_session_id_sequence",
				Unique:  true,
				Columns: []*schema.Column{ResponseRecordsColumns[8], ResponseRecordsColumns[1]},
			},
		},
	}

	// ResultSequenceColumns holds the columns for the "result_sequence" table.
	ResultSequenceColumns = []*schema.Column{
		{Name: "id", Type: field.TypeInt},
		{Name: "next_val", Type: field.TypeInt64, Default: 1},
	}
	// ResultSequenceTable holds the single counter row behind session result
	// sequence numbers.
	ResultSequenceTable = &schema.Table{
		Name:       "result_sequence",
		Columns:    ResultSequenceColumns,
		PrimaryKey: []*schema.Column{ResultSequenceColumns[0]},
	}

	// Tables holds all the tables in the schema.
	Tables = []*schema.Table{
		PoolSnapshotsTable,
		PoolItemsTable,
		SessionResultsTable,
		ResponseRecordsTable,
		ResultSequenceTable,
	}
)

func init() {
	PoolItemsTable.ForeignKeys[0].RefTable = PoolSnapshotsTable
	ResponseRecordsTable.ForeignKeys[0].RefTable = SessionResultsTable
}
