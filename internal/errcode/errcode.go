package errcode

// 错误码约定：
// - 0：无错误
// - 4xxx：业务可恢复/告警类错误（例如资源缺失、校验失败）
// - 5xxx：系统错误（需要中断流程）
const (
	OK               = 0
	ValidationFailed = 4000
	Unauthorized     = 4001
	NotFound         = 4004
	ResourceMissing  = 4004
	Conflict         = 4009
	SystemError      = 5000
	StorageFailure   = 5003
)
