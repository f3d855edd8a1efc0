package notifier

import (
	"fmt"
	"strconv"
	"strings"

	"stockwatch/internal/storage"
)

const (
	builtinRestock = "🎉补货通知:\n\n📦 商品名称: {product_name}\n📈 补货数量: {stock_difference} 件\n📦 当前库存: {current_stock} 件\n\n🛒 前往购买：{buy_url}"
	builtinSale    = "🎉销售通知:\n\n📦 商品名称: {product_name}\n📈 被购买: {stock_difference} 件\n📦 剩余库存: {current_stock} 件\n\n🛒 前往购买：{buy_url}"
)

var markdownEscaper = strings.NewReplacer("_", "\\_", "*", "\\*", "`", "\\`", "[", "\\[")

// templateVars builds the placeholder values. The product name is escaped
// for Telegram's legacy Markdown since it is free text.
func templateVars(it storage.Item, magnitude int, checkTime string) map[string]string {
	buy := strings.TrimSpace(it.BuyURL)
	if buy == "" {
		buy = it.URL
	}
	return map[string]string{
		VarProductName:     markdownEscaper.Replace(it.Name),
		VarCurrentStock:    strconv.Itoa(it.CurrentQuantity),
		VarPreviousStock:   strconv.Itoa(it.PreviousQuantity),
		VarStockDifference: strconv.Itoa(magnitude),
		VarCheckTime:       checkTime,
		VarProductURL:      it.URL,
		VarBuyURL:          buy,
	}
}

// templateChain lists the templates to try for kind, most specific first.
func templateChain(p storage.Policy, kind Kind) []string {
	switch kind {
	case KindSale:
		return []string{p.TemplateSale, builtinSale}
	default:
		return []string{p.TemplateRestock, builtinRestock}
	}
}

// FormatMessage renders the notification text. It always returns a message;
// the error reports the last render failure, if any template failed.
func FormatMessage(p storage.Policy, it storage.Item, kind Kind, magnitude int, checkTime string) (string, error) {
	vars := templateVars(it, magnitude, checkTime)

	var lastErr error
	for _, tmpl := range templateChain(p, kind) {
		if strings.TrimSpace(tmpl) == "" {
			continue
		}
		msg, err := Render(tmpl, vars)
		if err == nil {
			return msg, lastErr
		}
		lastErr = err
	}
	return minimalMessage(it, kind, magnitude, checkTime), lastErr
}

func minimalMessage(it storage.Item, kind Kind, magnitude int, checkTime string) string {
	name := markdownEscaper.Replace(it.Name)
	var msg string
	switch kind {
	case KindRestock:
		msg = fmt.Sprintf("📦 补货通知\n\n【%s】补货 %d 件\n\n📦 当前库存：%d 件\n🕐 检测时间：%s", name, magnitude, it.CurrentQuantity, checkTime)
	case KindSale:
		msg = fmt.Sprintf("🛒 销售通知\n\n【%s】被购买 %d 件\n\n📦 当前库存：%d 件\n🕐 检测时间：%s", name, magnitude, it.CurrentQuantity, checkTime)
	default:
		msg = fmt.Sprintf("📊 【%s】库存变化\n\n📦 当前库存：%d 件\n📊 变化数量：%+d\n\n🕐 检测时间：%s", name, it.CurrentQuantity, magnitude, checkTime)
	}
	if buy := strings.TrimSpace(it.BuyURL); buy != "" {
		msg += "\n\n🛒 前往购买：" + buy
	}
	return msg
}

// TestMessage is the sample text sent by the test-notification operation.
func TestMessage(checkTime string) string {
	return "🧪 测试通知\n\n📦 商品名称: 测试商品\n📈 补货数量: 5 件\n📊 当前库存: 10 件\n\n🕐 发送时间: " + checkTime
}

// ValidateTemplate renders tmpl against sample values. An empty template is
// valid; the built-in one is used instead.
func ValidateTemplate(tmpl string) error {
	if strings.TrimSpace(tmpl) == "" {
		return nil
	}
	sample := storage.Item{Name: "sample", URL: "https://example.com", CurrentQuantity: 1}
	_, err := Render(tmpl, templateVars(sample, 1, "2006-01-02 15:04:05"))
	return err
}
