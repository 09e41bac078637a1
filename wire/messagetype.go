package wire

import "strconv"

// MessageType is the operation or response code carried in the first header field.
type MessageType int32

// Message types understood by this protocol version.
const (
	Invalid                     MessageType = -1
	Request                     MessageType = 0
	Response                    MessageType = 1
	Exception                   MessageType = 2
	RequestDataError            MessageType = 3
	Ping                        MessageType = 5
	Reply                       MessageType = 6
	Put                         MessageType = 7
	PutDataError                MessageType = 8
	Destroy                     MessageType = 9
	DestroyDataError            MessageType = 10
	DestroyRegion               MessageType = 11
	DestroyRegionDataError      MessageType = 12
	ClientNotification          MessageType = 13
	UpdateClientNotification    MessageType = 14
	LocalInvalidate             MessageType = 15
	LocalDestroy                MessageType = 16
	LocalDestroyRegion          MessageType = 17
	CloseConnection             MessageType = 18
	ProcessBatch                MessageType = 19
	RegisterInterest            MessageType = 20
	RegisterInterestDataError   MessageType = 21
	UnregisterInterest          MessageType = 22
	UnregisterInterestDataError MessageType = 23
	RegisterInterestList        MessageType = 24
	UnregisterInterestList      MessageType = 25
	Unknown                     MessageType = 26
	Get                         MessageType = 27
	GetAll                      MessageType = 28
	PutAll                      MessageType = 29
	RemoveAll                   MessageType = 30
	Query                       MessageType = 34
	QueryDataError              MessageType = 35
	ClearRegion                 MessageType = 36
	ContainsKey                 MessageType = 38
	KeySet                      MessageType = 40
	ExecuteFunction             MessageType = 59
	ExecuteRegionFunction       MessageType = 60
	ExecuteFunctionError        MessageType = 61
	ExecuteFunctionResult       MessageType = 62
	ChunkedResponse             MessageType = 63
	AuthenticateRequest         MessageType = 76
	AuthenticateResponse        MessageType = 77
	Size                        MessageType = 81
	Invalidate                  MessageType = 83
	ServerToClientPing          MessageType = 86
	GetPDXTypeByID              MessageType = 92
)

var messageTypeNames = map[MessageType]string{
	Request:                     "REQUEST",
	Response:                    "RESPONSE",
	Exception:                   "EXCEPTION",
	RequestDataError:            "REQUEST_DATA_ERROR",
	Ping:                        "PING",
	Reply:                       "REPLY",
	Put:                         "PUT",
	PutDataError:                "PUT_DATA_ERROR",
	Destroy:                     "DESTROY",
	DestroyDataError:            "DESTROY_DATA_ERROR",
	DestroyRegion:               "DESTROY_REGION",
	DestroyRegionDataError:      "DESTROY_REGION_DATA_ERROR",
	ClientNotification:          "CLIENT_NOTIFICATION",
	UpdateClientNotification:    "UPDATE_CLIENT_NOTIFICATION",
	LocalInvalidate:             "LOCAL_INVALIDATE",
	LocalDestroy:                "LOCAL_DESTROY",
	LocalDestroyRegion:          "LOCAL_DESTROY_REGION",
	CloseConnection:             "CLOSE_CONNECTION",
	ProcessBatch:                "PROCESS_BATCH",
	RegisterInterest:            "REGISTER_INTEREST",
	RegisterInterestDataError:   "REGISTER_INTEREST_DATA_ERROR",
	UnregisterInterest:          "UNREGISTER_INTEREST",
	UnregisterInterestDataError: "UNREGISTER_INTEREST_DATA_ERROR",
	RegisterInterestList:        "REGISTER_INTEREST_LIST",
	UnregisterInterestList:      "UNREGISTER_INTEREST_LIST",
	Unknown:                     "UNKNOWN",
	Get:                         "GET",
	GetAll:                      "GET_ALL",
	PutAll:                      "PUT_ALL",
	RemoveAll:                   "REMOVE_ALL",
	Query:                       "QUERY",
	QueryDataError:              "QUERY_DATA_ERROR",
	ClearRegion:                 "CLEAR_REGION",
	ContainsKey:                 "CONTAINS_KEY",
	KeySet:                      "KEY_SET",
	ExecuteFunction:             "EXECUTE_FUNCTION",
	ExecuteRegionFunction:       "EXECUTE_REGION_FUNCTION",
	ExecuteFunctionError:        "EXECUTE_FUNCTION_ERROR",
	ExecuteFunctionResult:       "EXECUTE_FUNCTION_RESULT",
	ChunkedResponse:             "CHUNKED_RESPONSE",
	AuthenticateRequest:         "AUTHENTICATE_REQUEST",
	AuthenticateResponse:        "AUTHENTICATE_RESPONSE",
	Size:                        "SIZE",
	Invalidate:                  "INVALIDATE",
	ServerToClientPing:          "SERVER_TO_CLIENT_PING",
	GetPDXTypeByID:              "GET_PDX_TYPE_BY_ID",
}

// Valid reports whether t is a message type this protocol version accepts.
// Invalid is never valid.
func (t MessageType) Valid() bool {
	_, ok := messageTypeNames[t]
	return ok
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	if t == Invalid {
		return "INVALID"
	}
	return "UNKNOWN_TYPE(" + strconv.Itoa(int(t)) + ")"
}
