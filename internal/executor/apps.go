package executor

import "strings"

// AppResolver maps a display name to a platform identifier
type AppResolver interface {
	Resolve(name string) (string, bool)
}

// AppTable is a many-to-one alias table. Keys are folded names.
type AppTable map[string]string

// NewAppTable builds a table from identifier -> display names.
func NewAppTable(aliases map[string][]string) AppTable {
	t := make(AppTable)
	for id, names := range aliases {
		t.Add(id, names...)
	}
	return t
}

// Add registers names for id. The identifier itself always resolves.
func (t AppTable) Add(id string, names ...string) {
	t[foldName(id)] = id
	for _, n := range names {
		t[foldName(n)] = id
	}
}

// Resolve folds case, spaces, hyphens and underscores before lookup.
func (t AppTable) Resolve(name string) (string, bool) {
	key := foldName(name)
	if key == "" {
		return "", false
	}
	id, ok := t[key]
	return id, ok
}

func foldName(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer(" ", "", "-", "", "_", "").Replace(s)
}

// DefaultApps is the built-in alias table.
var DefaultApps = NewAppTable(map[string][]string{
	"com.tencent.mm":                              {"WeChat", "微信"},
	"com.tencent.mobileqq":                        {"QQ"},
	"com.tencent.qqmusic":                         {"QQ音乐", "QQ Music"},
	"com.tencent.androidqqmail":                   {"QQ邮箱", "QQ Mail"},
	"com.sina.weibo":                              {"微博", "Weibo"},
	"com.taobao.taobao":                           {"淘宝", "淘宝闪购", "Taobao"},
	"com.jingdong.app.mall":                       {"京东", "京东秒送", "JD"},
	"com.xunmeng.pinduoduo":                       {"拼多多", "Pinduoduo"},
	"com.einnovation.temu":                        {"Temu"},
	"com.xingin.xhs":                              {"小红书", "Xiaohongshu", "RedNote"},
	"com.zhihu.android":                           {"知乎", "Zhihu"},
	"com.autonavi.minimap":                        {"高德地图", "Amap"},
	"com.baidu.BaiduMap":                          {"百度地图", "Baidu Maps"},
	"com.sankuai.meituan":                         {"美团", "Meituan"},
	"me.ele":                                      {"饿了么", "Eleme"},
	"ctrip.android.view":                          {"携程", "Ctrip", "Trip.com"},
	"com.MobileTicket":                            {"铁路12306", "12306"},
	"tv.danmaku.bili":                             {"bilibili", "哔哩哔哩"},
	"com.ss.android.ugc.aweme":                    {"抖音", "Douyin"},
	"com.smile.gifmaker":                          {"快手", "Kuaishou"},
	"com.netease.cloudmusic":                      {"网易云音乐", "NetEase Music"},
	"com.ss.android.lark":                         {"飞书", "Lark", "Feishu"},
	"org.videolan.vlc":                            {"VLC"},
	"net.cozic.joplin":                            {"Joplin"},
	"com.android.settings":                        {"Settings", "AndroidSystemSettings", "Android System Settings", "设置"},
	"com.android.soundrecorder":                   {"AudioRecorder", "Audio Recorder"},
	"com.android.chrome":                          {"Chrome", "Google Chrome"},
	"com.android.deskclock":                       {"Clock"},
	"com.android.contacts":                        {"Contacts"},
	"com.android.fileexplorer":                    {"Files", "File Manager"},
	"com.android.vending":                         {"Google Play Store", "Play Store"},
	"com.duolingo":                                {"Duolingo"},
	"com.expedia.bookings":                        {"Expedia"},
	"com.google.android.gm":                       {"Gmail", "Google Mail"},
	"com.google.android.apps.nbu.files":           {"Google Files", "Files by Google"},
	"com.google.android.calendar":                 {"Google Calendar"},
	"com.google.android.apps.dynamite":            {"Google Chat"},
	"com.google.android.deskclock":                {"Google Clock"},
	"com.google.android.contacts":                 {"Google Contacts"},
	"com.google.android.apps.docs":                {"Google Drive"},
	"com.google.android.apps.docs.editors.docs":   {"Google Docs"},
	"com.google.android.apps.docs.editors.slides": {"Google Slides"},
	"com.google.android.apps.tasks":               {"Google Tasks"},
	"com.google.android.apps.fitness":             {"Google Fit"},
	"com.google.android.keep":                     {"Google Keep"},
	"com.google.android.apps.maps":                {"Google Maps"},
	"com.google.android.apps.books":               {"Google Play Books"},
	"com.mcdonalds.app":                           {"McDonald", "McDonalds"},
	"net.osmand":                                  {"Osmand"},
	"com.quora.android":                           {"Quora"},
	"com.reddit.frontpage":                        {"Reddit"},
	"com.douban.frodo":                            {"豆瓣", "Douban"},
	"com.dianping.v1":                             {"大众点评", "Dianping"},
	"com.yek.android.kfc.activitys":               {"肯德基", "KFC"},
	"com.Qunar":                                   {"去哪儿", "去哪儿旅行", "Qunar"},
	"com.sdu.did.psnger":                          {"滴滴出行", "DiDi"},
	"com.tencent.qqlive":                          {"腾讯视频", "Tencent Video"},
	"com.qiyi.video":                              {"爱奇艺", "iQIYI"},
	"com.youku.phone":                             {"优酷视频", "Youku"},
	"com.hunantv.imgo.activity":                   {"芒果TV", "Mango TV"},
	"com.phoenix.read":                            {"红果短剧"},
	"com.luna.music":                              {"汽水音乐"},
	"com.ximalaya.ting.android":                   {"喜马拉雅", "Ximalaya"},
	"com.Project100Pi.themusicplayer":             {"PiMusicPlayer"},
	"code.name.monkey.retromusic":                 {"RetroMusic"},
	"com.dragon.read":                             {"番茄小说", "番茄免费小说"},
	"com.kmxs.reader":                             {"七猫免费小说"},
	"com.larus.nova":                              {"豆包", "Doubao"},
	"com.gotokeep.keep":                           {"Keep"},
	"com.lingan.seeyou":                           {"美柚"},
	"com.tencent.news":                            {"腾讯新闻"},
	"com.ss.android.article.news":                 {"今日头条", "Toutiao"},
	"com.lianjia.beike":                           {"贝壳找房"},
	"com.anjuke.android.app":                      {"安居客"},
	"com.hexin.plat.android":                      {"同花顺"},
	"com.rammigsoftware.bluecoins":                {"Bluecoins"},
	"com.miHoYo.hkrpg":                            {"星穹铁道", "崩坏：星穹铁道"},
	"com.papegames.lysk.cn":                       {"恋与深空"},
	"com.simplemobiletools.smsmessenger":          {"SimpleSMSMessenger"},
	"org.telegram.messenger":                      {"Telegram"},
	"com.zhiliaoapp.musically":                    {"Tiktok"},
	"com.twitter.android":                         {"Twitter", "X"},
	"com.whatsapp":                                {"Whatsapp"},
	"com.lerist.fakelocation":                     {"虚拟定位", "Fake Location", "Mock Location"},
	"com.vphonegaga.titan":                        {"虚拟机", "Virtual Machine", "VPhoneGaga"},

	"com.scientificcalculatorplus.simplecalculator.basiccalculator.mathcalc": {"SimpleCalendarPro"},
})
