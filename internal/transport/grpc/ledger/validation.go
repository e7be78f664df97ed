package ledger

import (
	"time"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
)

func stringField(s *structpb.Struct, name string) string {
	return s.GetFields()[name].GetStringValue()
}

func boolField(s *structpb.Struct, name string) bool {
	return s.GetFields()[name].GetBoolValue()
}

func intField(s *structpb.Struct, name string) int {
	return int(s.GetFields()[name].GetNumberValue())
}

// requireProductID validates the product_id common to most requests.
func requireProductID(req *structpb.Struct) (string, error) {
	id := stringField(req, "product_id")
	if id == "" {
		return "", status.Error(codes.InvalidArgument, "product_id is required")
	}
	return id, nil
}

// timeField parses an RFC 3339 timestamp. A missing field yields the zero time
// and is left to domain validation.
func timeField(s *structpb.Struct, name string) (time.Time, error) {
	raw := stringField(s, name)
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, status.Errorf(codes.InvalidArgument, "%s must be an RFC 3339 timestamp", name)
	}
	return t, nil
}

func validateTransitionRequest(req *structpb.Struct) error {
	if stringField(req, "new_status") == "" {
		return status.Error(codes.InvalidArgument, "new_status is required")
	}
	return nil
}

func validateRecordActivityRequest(req *structpb.Struct) error {
	if stringField(req, "event_type") == "" {
		return status.Error(codes.InvalidArgument, "event_type is required")
	}
	return nil
}
