package audit

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLog_Record(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	log := NewLog(db)

	tests := []struct {
		name  string
		entry Entry
	}{
		{
			name: "success with payload",
			entry: Entry{
				Provider:      "evolution",
				Outcome:       OutcomeSuccess,
				Phone:         "5511987654321",
				Text:          "sim",
				Candidates:    []string{"5511987654321", "11987654321"},
				PatientID:     "p1",
				AppointmentID: "a1",
				Payload:       json.RawMessage(`{"event":"messages.upsert"}`),
			},
		},
		{
			name: "ignored without patient",
			entry: Entry{
				Provider: "zapi",
				Outcome:  OutcomeIgnored,
				Reason:   "patient_not_found",
				Phone:    "5511900000000",
				Payload:  json.RawMessage(`not json`),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.ExpectExec("INSERT INTO webhook_audit_logs").
				WithArgs(
					sqlmock.AnyArg(), tt.entry.Provider, string(tt.entry.Outcome),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
					sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(),
				).
				WillReturnResult(sqlmock.NewResult(1, 1))

			assert.NoError(t, log.Record(context.Background(), tt.entry))
		})
	}
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestLog_RecordError(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec("INSERT INTO webhook_audit_logs").
		WillReturnError(errors.New("connection reset"))

	err = NewLog(db).Record(context.Background(), Entry{Provider: "meta", Outcome: OutcomeError})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "audit:")
}
