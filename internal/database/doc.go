// Copyright (c) ConvoFlow Authors.
// Licensed under the MIT License.

/*
Package database 提供归档库共用的 GORM 连接池调优与事务重试。

# 概述

归档的关系型后端（sqlite / mysql / postgres）共享同一套
连接池参数与瞬时错误处理策略，本包把这两件事从具体存储中抽出来。

# 核心能力

  - Tune: 把 PoolConfig 应用到 GORM 底层的 sql.DB，
    DefaultPoolConfig 针对归档的单写者低频写入调小池子
  - RunInTx: 事务执行加指数退避重试，
    IsRetryable 识别死锁、序列化失败与连接类瞬时错误

# 使用示例

	if err := database.Tune(db, database.DefaultPoolConfig(), logger); err != nil {
		return err
	}
	err := database.RunInTx(ctx, db, logger, 3, func(tx *gorm.DB) error {
		return tx.Save(&rec).Error
	})
*/
package database
