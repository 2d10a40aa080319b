package domain

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// Typed ids encode as canonical UUID strings in JSON and as uuid values in SQL.

func (id UserID) MarshalText() ([]byte, error)          { return uuid.UUID(id).MarshalText() }
func (id RespondentID) MarshalText() ([]byte, error)    { return uuid.UUID(id).MarshalText() }
func (id ConsentID) MarshalText() ([]byte, error)       { return uuid.UUID(id).MarshalText() }
func (id ParticipationID) MarshalText() ([]byte, error) { return uuid.UUID(id).MarshalText() }
func (id EventID) MarshalText() ([]byte, error)         { return uuid.UUID(id).MarshalText() }

func (id *UserID) UnmarshalText(b []byte) error          { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *RespondentID) UnmarshalText(b []byte) error    { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ConsentID) UnmarshalText(b []byte) error       { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *ParticipationID) UnmarshalText(b []byte) error { return (*uuid.UUID)(id).UnmarshalText(b) }
func (id *EventID) UnmarshalText(b []byte) error         { return (*uuid.UUID)(id).UnmarshalText(b) }

func (id UserID) Value() (driver.Value, error)          { return uuid.UUID(id).String(), nil }
func (id RespondentID) Value() (driver.Value, error)    { return uuid.UUID(id).String(), nil }
func (id ConsentID) Value() (driver.Value, error)       { return uuid.UUID(id).String(), nil }
func (id ParticipationID) Value() (driver.Value, error) { return uuid.UUID(id).String(), nil }
func (id EventID) Value() (driver.Value, error)         { return uuid.UUID(id).String(), nil }

func (id *UserID) Scan(src any) error          { return scanUUID((*uuid.UUID)(id), src) }
func (id *RespondentID) Scan(src any) error    { return scanUUID((*uuid.UUID)(id), src) }
func (id *ConsentID) Scan(src any) error       { return scanUUID((*uuid.UUID)(id), src) }
func (id *ParticipationID) Scan(src any) error { return scanUUID((*uuid.UUID)(id), src) }
func (id *EventID) Scan(src any) error         { return scanUUID((*uuid.UUID)(id), src) }

func scanUUID(dst *uuid.UUID, src any) error {
	if src == nil {
		*dst = uuid.Nil
		return nil
	}
	if err := dst.Scan(src); err != nil {
		return fmt.Errorf("scan typed id: %w", err)
	}
	return nil
}
