// Package metrics 提供 convoflow 的 Prometheus 指标收集。
// HTTP 指标由中间件直接记录；会话、工具与错误指标通过把 Collector
// 挂为事件广播的订阅者（ObserveEvent）获得，不侵入编排引擎。
package metrics
