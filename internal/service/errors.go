package service

import "errors"

var (
	// ErrCustomerUnresolved 客户无法解析为本地患者，属预期稳态情形
	ErrCustomerUnresolved = errors.New("customer unresolved")
	// ErrCommissionNotFound 退款冲正未定位到原佣金记录
	ErrCommissionNotFound = errors.New("commission event not found")
	// ErrDeadLetterNotFound 死信记录不存在
	ErrDeadLetterNotFound = errors.New("dead letter not found")
	// ErrDeadLetterUnreplayable 死信原始报文缺失或不可解析，无法重放
	ErrDeadLetterUnreplayable = errors.New("dead letter not replayable")
	// ErrFraudAlertNotFound 风控告警不存在
	ErrFraudAlertNotFound = errors.New("fraud alert not found")
	// ErrReconcileDisabled 对账任务未启用
	ErrReconcileDisabled = errors.New("reconciliation disabled")
	// ErrReconcileSecretInvalid 对账触发密钥不合法
	ErrReconcileSecretInvalid = errors.New("reconcile secret invalid")
)
