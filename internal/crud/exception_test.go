package crud

import (
	"errors"
	"testing"
)

func TestExceptionResponseForAppError(t *testing.T) {
	status, body := ExceptionResponse(AccessDeniedError("ROLE_ADMIN"), false)
	if status != 403 {
		t.Fatalf("unexpected status %d", status)
	}
	if body["success"] != false || body["exception"] != true {
		t.Fatalf("missing envelope markers: %v", body)
	}
	if body["code"] != "ACCESS_DENIED" || body["role"] != "ROLE_ADMIN" {
		t.Fatalf("unexpected body: %v", body)
	}
	if _, ok := body["class"]; !ok {
		t.Fatal("dev responses should carry the error class")
	}

	_, body = ExceptionResponse(BadRequestError("/record", "bad"), true)
	if _, ok := body["class"]; ok {
		t.Fatal("prod responses must not leak the error class")
	}
	if body["path"] != "/record" {
		t.Fatalf("path should survive in prod: %v", body)
	}
}

func TestExceptionResponseForUnexpectedError(t *testing.T) {
	boom := errors.New("boom")

	status, body := ExceptionResponse(boom, false)
	if status != 500 {
		t.Fatalf("unexpected status %d", status)
	}
	if body["message"] != "boom" {
		t.Fatalf("dev should expose the message: %v", body)
	}
	if body["stack_trace"] == "" || body["stack_trace"] == nil {
		t.Fatal("dev should expose a stack trace")
	}

	_, body = ExceptionResponse(boom, true)
	if body["message"] != "Internal server error" {
		t.Fatalf("prod must hide the message: %v", body)
	}
	if _, ok := body["stack_trace"]; ok {
		t.Fatal("prod must not expose a stack trace")
	}
}
