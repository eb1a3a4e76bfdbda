package httpapi

// Result GET /user/{id} 和 PATCH /user/{id}/permissions 的响应信封
// 客户端以 code 判定成功与否（HTTP 状态码只区分 400/404/405/500），
// 失败时 message 直接展示给操作员，result 为 null
type Result[T any] struct {
	Code    int    `json:"code"`
	Type    string `json:"type"`
	Message string `json:"message"`
	Result  T      `json:"result"`
}

const (
	ResultSuccess = 2000
	ResultError   = -1

	resultTypeSuccess = "success"
	resultTypeError   = "error"
)

// Ok 成功响应：subject 视图或已写入的单元格
func Ok[T any](result T) Result[T] {
	return Result[T]{Code: ResultSuccess, Type: resultTypeSuccess, Message: "ok", Result: result}
}

// Fail 失败响应，message 例如 "subject not found"、"invalid body"
func Fail(message string) Result[any] {
	return Result[any]{Code: ResultError, Type: resultTypeError, Message: message}
}
