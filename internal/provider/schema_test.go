package provider

import (
	"testing"
)

func findingSchema() *Schema {
	return Object(
		Field{Name: "title", Type: TypeString},
		Field{Name: "category", Type: TypeString, Enum: []string{"technical", "schedule", "cost"}},
		Field{Name: "severity", Type: TypeInt},
		Field{Name: "description", Type: TypeString},
		Field{Name: "remediation", Type: TypeString, Optional: true},
	)
}

func TestSchemaValidate(t *testing.T) {
	tests := []struct {
		name    string
		schema  *Schema
		payload string
		wantErr bool
	}{
		{
			name:    "conforming object",
			schema:  findingSchema(),
			payload: `{"title":"Thermal margin","category":"technical","severity":4,"description":"Heat sink undersized"}`,
			wantErr: false,
		},
		{
			name:    "optional field present",
			schema:  findingSchema(),
			payload: `{"title":"t","category":"cost","severity":1,"description":"d","remediation":"r"}`,
			wantErr: false,
		},
		{
			name:    "missing required field",
			schema:  findingSchema(),
			payload: `{"title":"t","category":"cost","severity":1}`,
			wantErr: true,
		},
		{
			name:    "enum violation",
			schema:  findingSchema(),
			payload: `{"title":"t","category":"political","severity":1,"description":"d"}`,
			wantErr: true,
		},
		{
			name:    "non-integral severity",
			schema:  findingSchema(),
			payload: `{"title":"t","category":"cost","severity":1.5,"description":"d"}`,
			wantErr: true,
		},
		{
			name:    "wrong top-level kind",
			schema:  findingSchema(),
			payload: `["not","an","object"]`,
			wantErr: true,
		},
		{
			name:    "not JSON at all",
			schema:  findingSchema(),
			payload: `Here is the finding you asked for:`,
			wantErr: true,
		},
		{
			name:    "array of strings",
			schema:  Array(Object(Field{Name: "name", Type: TypeString})),
			payload: `[{"name":"Requirements Spec"},{"name":"Test Plan"}]`,
			wantErr: false,
		},
		{
			name:    "array element mismatch",
			schema:  Array(Object(Field{Name: "name", Type: TypeString})),
			payload: `[{"name":"ok"},{"name":42}]`,
			wantErr: true,
		},
		{
			name:    "nested array field",
			schema:  Object(Field{Name: "steps", Type: TypeArray, Items: Object(Field{Name: "action", Type: TypeString})}),
			payload: `{"steps":[{"action":"extract BOM"},{"action":"format CSV"}]}`,
			wantErr: false,
		},
		{
			name:    "fenced JSON accepted",
			schema:  findingSchema(),
			payload: "```json\n{\"title\":\"t\",\"category\":\"schedule\",\"severity\":2,\"description\":\"d\"}\n```",
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.schema.Validate([]byte(tt.payload))
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !IsFormatError(err) {
				t.Errorf("validation failures must be *FormatError, got %T", err)
			}
		})
	}
}

func TestSchemaDecode(t *testing.T) {
	schema := Array(Object(Field{Name: "name", Type: TypeString}))

	var docs []struct {
		Name string `json:"name"`
	}
	if err := schema.Decode([]byte(`[{"name":"SRS"},{"name":"ICD"}]`), &docs); err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	if len(docs) != 2 || docs[1].Name != "ICD" {
		t.Errorf("decoded docs = %+v", docs)
	}
}
