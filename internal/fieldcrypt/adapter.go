package fieldcrypt

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm/schema"

	apperrors "github.com/fieldvault/fieldvault/pkg/errors"
	"github.com/fieldvault/fieldvault/pkg/logger"
)

// FieldAdapter applies the codec to individual field values with the
// policies a storage layer needs: writes fail hard, reads fail open to
// null so one corrupt row cannot take down a listing.
type FieldAdapter struct {
	codec *Codec
	log   *zap.Logger
}

// NewFieldAdapter constructs a FieldAdapter over the supplied codec.
func NewFieldAdapter(codec *Codec) *FieldAdapter {
	return &FieldAdapter{
		codec: codec,
		log:   logger.WithModule("fieldcrypt"),
	}
}

// EncryptField encrypts a nullable field value for storage. Nil passes
// through unchanged; an encryption failure rejects the write, since
// silently persisting plaintext is never acceptable.
func (a *FieldAdapter) EncryptField(ctx context.Context, plaintext *string) (*string, error) {
	if plaintext == nil {
		return nil, nil
	}

	encoded, err := a.codec.Encode(ctx, *plaintext)
	if err != nil {
		return nil, err
	}
	return &encoded, nil
}

// DecryptField decrypts a stored field value for display. Any decode
// failure is logged under a correlation id and resolved to nil; the
// plaintext and key material never reach the log.
func (a *FieldAdapter) DecryptField(ctx context.Context, wireValue *string) *string {
	if wireValue == nil {
		return nil
	}

	plaintext, err := a.codec.Decode(ctx, *wireValue)
	if err != nil {
		correlationID := uuid.NewString()
		a.log.Error("field decryption failed",
			zap.String("correlation_id", correlationID),
			zap.Error(err))
		return nil
	}
	return &plaintext
}

// Serializer encrypts struct fields transparently through GORM. Tag a
// column with `gorm:"serializer:encrypted"` after registering.
type Serializer struct {
	adapter *FieldAdapter
}

// RegisterSerializer installs the encrypted field serializer globally.
func RegisterSerializer(adapter *FieldAdapter) {
	schema.RegisterSerializer("encrypted", &Serializer{adapter: adapter})
}

// Scan decrypts the database value into the struct field.
func (s *Serializer) Scan(ctx context.Context, field *schema.Field, dst reflect.Value, dbValue interface{}) error {
	var wireValue *string
	switch v := dbValue.(type) {
	case nil:
	case string:
		wireValue = &v
	case []byte:
		str := string(v)
		wireValue = &str
	default:
		return fmt.Errorf("fieldcrypt: cannot scan %T into encrypted field %s", dbValue, field.Name)
	}

	plaintext := s.adapter.DecryptField(ctx, wireValue)

	fieldValue := reflect.New(field.FieldType)
	switch field.FieldType.Kind() {
	case reflect.String:
		if plaintext != nil {
			fieldValue.Elem().SetString(*plaintext)
		}
	case reflect.Pointer:
		if field.FieldType.Elem().Kind() != reflect.String {
			return fmt.Errorf("fieldcrypt: unsupported encrypted field type %s", field.FieldType)
		}
		if plaintext != nil {
			fieldValue.Elem().Set(reflect.ValueOf(plaintext))
		}
	default:
		return fmt.Errorf("fieldcrypt: unsupported encrypted field type %s", field.FieldType)
	}

	field.ReflectValueOf(ctx, dst).Set(fieldValue.Elem())
	return nil
}

// Value encrypts the struct field for storage.
func (s *Serializer) Value(ctx context.Context, field *schema.Field, dst reflect.Value, fieldValue interface{}) (interface{}, error) {
	var plaintext *string
	switch v := fieldValue.(type) {
	case nil:
	case string:
		plaintext = &v
	case *string:
		plaintext = v
	default:
		return nil, apperrors.ErrValidation.WithInternal(
			fmt.Errorf("fieldcrypt: cannot encrypt %T field %s", fieldValue, field.Name))
	}

	encoded, err := s.adapter.EncryptField(ctx, plaintext)
	if err != nil {
		return nil, err
	}
	if encoded == nil {
		return nil, nil
	}
	return *encoded, nil
}
