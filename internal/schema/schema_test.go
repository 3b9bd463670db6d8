package schema

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestValidateString(t *testing.T) {
	if err := Validate(String(), "hello"); err != nil {
		t.Fatalf("Validate(String, \"hello\") = %v, want nil", err)
	}
	err := Validate(String(), 42)
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("Validate(String, 42) = %v, want ErrInvalidType", err)
	}
}

func TestValidateNumberAcceptsAllNumericKinds(t *testing.T) {
	for _, v := range []interface{}{float64(1), int(1), int64(1), json.Number("1")} {
		if err := Validate(Number(), v); err != nil {
			t.Fatalf("Validate(Number, %v (%T)) = %v, want nil", v, v, err)
		}
	}
	if err := Validate(Number(), "1"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("Validate(Number, \"1\") = %v, want ErrInvalidType", err)
	}
}

func TestValidateObjectMissingRequired(t *testing.T) {
	s := Object([]string{"name"}, map[string]*Schema{"name": String()}, false)
	err := Validate(s, map[string]interface{}{})
	if !errors.Is(err, ErrMissingRequiredProperty) {
		t.Fatalf("err = %v, want ErrMissingRequiredProperty", err)
	}
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "name" {
		t.Fatalf("ve = %+v, want Field=name", ve)
	}
}

func TestValidateObjectUnknownProperty(t *testing.T) {
	s := Object(nil, map[string]*Schema{"name": String()}, false)
	err := Validate(s, map[string]interface{}{"name": "x", "extra": 1})
	if !errors.Is(err, ErrUnknownProperty) {
		t.Fatalf("err = %v, want ErrUnknownProperty", err)
	}
}

func TestValidateObjectAllowsAdditionalProperties(t *testing.T) {
	s := Object(nil, map[string]*Schema{"name": String()}, true)
	err := Validate(s, map[string]interface{}{"name": "x", "extra": 1})
	if err != nil {
		t.Fatalf("Validate = %v, want nil", err)
	}
}

func TestValidateNestedObjectPropagatesFieldPath(t *testing.T) {
	inner := Object([]string{"count"}, map[string]*Schema{"count": Number()}, false)
	outer := Object([]string{"stats"}, map[string]*Schema{"stats": inner}, false)

	err := Validate(outer, map[string]interface{}{
		"stats": map[string]interface{}{"count": "not a number"},
	})
	var ve *ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("err = %v, want *ValidationError", err)
	}
	if ve.Field != "count" {
		t.Fatalf("ve.Field = %q, want %q", ve.Field, "count")
	}
	if !errors.Is(err, ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
}

func TestValidateObjectWrongRootType(t *testing.T) {
	s := Object(nil, nil, true)
	if err := Validate(s, "not an object"); !errors.Is(err, ErrInvalidType) {
		t.Fatalf("err = %v, want ErrInvalidType", err)
	}
}

func TestValidateFirstErrorWinsLeftToRight(t *testing.T) {
	// "a" sorts before "b"; both are invalid, so the error must name "a".
	s := Object(nil, map[string]*Schema{
		"a": String(),
		"b": String(),
	}, false)
	err := Validate(s, map[string]interface{}{"a": 1, "b": 2})
	var ve *ValidationError
	if !errors.As(err, &ve) || ve.Field != "a" {
		t.Fatalf("ve = %+v, want Field=a", ve)
	}
}

