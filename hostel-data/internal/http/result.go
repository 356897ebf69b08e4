package httpapi

// Result 统一响应
// - code: 2000 成功，其余为错误码
// - type: 'success' | 'error'
// - message: string
// - result: any
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1

	ResultInvalidArgument  = 40001
	ResultNotFound         = 40401
	ResultAssetUnavailable = 40901
	ResultAssetOccupied    = 40902
	ResultConflict         = 40903
	ResultStorage          = 50301
)

func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: "success", Message: "ok", Result: result}
}

func Fail(message string) Result[any] {
	return FailCode(ResultError, message)
}

func FailCode(code int, message string) Result[any] {
	return Result[any]{Code: code, Type: "error", Message: message, Result: nil}
}
