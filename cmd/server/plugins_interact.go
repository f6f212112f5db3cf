package main

// 引入交互平台插件，触发各平台的 init() 完成注册
import (
	_ "github.com/swappnet/swapp/addone/interact/platforms/cisco_ios"
)
