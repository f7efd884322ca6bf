// Command qualitydash serves and prints test quality dashboards built from
// Allure results.
package main

import (
	"github.com/sirupsen/logrus"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		logrus.WithError(err).Fatal("Command failed")
	}
}
