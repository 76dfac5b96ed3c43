package storage

var BindDollar = bindDollar
