package logging

import "github.com/sirupsen/logrus"

// BaseFields 构建 action + 配置路径等基础字段，便于不同入口复用。
func BaseFields(action, configPath string) logrus.Fields {
	return logrus.Fields{
		"action":     action,
		"configPath": configPath,
	}
}

// RequestFields 提供 store/key/命中状态字段，供代理请求日志复用。
func RequestFields(store, key string, cacheHit bool) logrus.Fields {
	return logrus.Fields{
		"store":     store,
		"key":       key,
		"cache_hit": cacheHit,
	}
}

// StoreFields 描述单个缓存目录，启动与诊断日志共用。
func StoreFields(store, dir string) logrus.Fields {
	return logrus.Fields{
		"store": store,
		"dir":   dir,
	}
}
